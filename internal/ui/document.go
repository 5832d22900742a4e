package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
)

// DefaultMountID is the element id the application tree mounts under.
const DefaultMountID = "app"

// Mount point errors. Both are fatal at startup.
var (
	ErrMountPointMissing   = errors.New("mount point missing")
	ErrMountPointAmbiguous = errors.New("mount point ambiguous")
)

// Document is a host page split around its mount point.
// The mount element's original children are replaced on every Mount.
type Document struct {
	mountID string
	prefix  []byte
	suffix  []byte
}

// ParseDocument reads a host page and locates the single element with id=mountID.
func ParseDocument(r io.Reader, mountID string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	z := html.NewTokenizer(bytes.NewReader(src))
	var (
		offset     int
		found      int
		innerStart = -1
		innerEnd   = -1
		tagName    string
		depth      int
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return nil, fmt.Errorf("tokenize document: %w", z.Err())
		}
		raw := len(z.Raw())
		start := offset
		offset += raw

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if innerStart >= 0 && innerEnd < 0 && tt == html.StartTagToken && tok.Data == tagName {
				depth++
			}
			if !hasID(tok, mountID) {
				continue
			}
			found++
			if found > 1 {
				return nil, fmt.Errorf("%w: %d elements with id %q", ErrMountPointAmbiguous, found, mountID)
			}
			if tt == html.SelfClosingTagToken || isVoid(tok.Data) {
				return nil, fmt.Errorf("mount point %q must be a container element", mountID)
			}
			innerStart = offset
			tagName = tok.Data
			depth = 1
		case html.EndTagToken:
			if innerStart < 0 || innerEnd >= 0 {
				continue
			}
			name, _ := z.TagName()
			if string(name) != tagName {
				continue
			}
			depth--
			if depth == 0 {
				innerEnd = start
			}
		}
	}

	if found == 0 {
		return nil, fmt.Errorf("%w: no element with id %q", ErrMountPointMissing, mountID)
	}
	if innerEnd < 0 {
		return nil, fmt.Errorf("mount point %q is never closed", mountID)
	}

	return &Document{
		mountID: mountID,
		prefix:  bytes.Clone(src[:innerStart]),
		suffix:  bytes.Clone(src[innerEnd:]),
	}, nil
}

// LoadDocument parses name from fsys.
func LoadDocument(fsys fs.FS, name, mountID string) (*Document, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return ParseDocument(f, mountID)
}

// MountID returns the id of the mount element.
func (d *Document) MountID() string {
	return d.mountID
}

// Mount writes the document with tree rendered inside the mount element.
func (d *Document) Mount(ctx context.Context, w io.Writer, tree templ.Component) error {
	if _, err := w.Write(d.prefix); err != nil {
		return err
	}
	if err := tree.Render(ctx, w); err != nil {
		return err
	}
	_, err := w.Write(d.suffix)
	return err
}

func hasID(tok html.Token, id string) bool {
	for _, attr := range tok.Attr {
		if attr.Namespace == "" && attr.Key == "id" && attr.Val == id {
			return true
		}
	}
	return false
}

func isVoid(tag string) bool {
	switch tag {
	case "area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}
