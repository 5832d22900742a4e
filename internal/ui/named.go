package ui

import (
	"context"
	"io"
	"runtime/debug"

	"github.com/a-h/templ"
)

// Named wraps c so failures inside it record name on the component stack.
// A panic in c is recovered and returned as a *RenderError.
func Named(name string, c templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = &RenderError{
					Err:            panicError(v),
					Panic:          v,
					ComponentStack: []string{name},
					GoStack:        debug.Stack(),
				}
			}
		}()

		if err := c.Render(ctx, w); err != nil {
			re := AsRenderError(err)
			re.ComponentStack = append(re.ComponentStack, name)
			return re
		}
		return nil
	})
}
