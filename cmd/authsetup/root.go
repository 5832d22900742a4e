package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/kuitang/gisportal/internal/s3client"
	"github.com/kuitang/gisportal/internal/sessioncapture"
)

var (
	flagBaseURL        string
	flagStatePath      string
	flagTriggerTimeout time.Duration
	flagStepTimeout    time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "http://localhost:8080", "portal origin")
	rootCmd.PersistentFlags().StringVar(&flagStatePath, "state", sessioncapture.DefaultArtifactPath, "session artifact path")
	rootCmd.PersistentFlags().DurationVar(&flagTriggerTimeout, "trigger-timeout", sessioncapture.DefaultTriggerTimeout, "wait for the LOGIN control and landing banner")
	rootCmd.PersistentFlags().DurationVar(&flagStepTimeout, "step-timeout", sessioncapture.DefaultStepTimeout, "bound for every other step")
}

var rootCmd = &cobra.Command{
	Use:          "authsetup",
	Short:        "Capture and check a signed-in portal browser session",
	SilenceUsage: true,
}

// mirrorEnv configures the optional S3 copy of the session artifact.
type mirrorEnv struct {
	Bucket          string `env:"AUTH_MIRROR_BUCKET"`
	Prefix          string `env:"AUTH_MIRROR_PREFIX"`
	Key             string `env:"AUTH_MIRROR_KEY" envDefault:"auth.json"`
	Secret          string `env:"AUTH_MIRROR_SECRET"` // hex; seals the mirrored copy
	CreateBucket    bool   `env:"AUTH_MIRROR_CREATE_BUCKET" envDefault:"false"`
	Endpoint        string `env:"S3_ENDPOINT"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
}

// newPersister builds the artifact writer, mirroring to S3 when AUTH_MIRROR_BUCKET is set.
func newPersister(ctx context.Context) (*sessioncapture.Persister, error) {
	var me mirrorEnv
	if err := env.Parse(&me); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	p := &sessioncapture.Persister{Path: flagStatePath, MirrorKey: me.Key}
	if me.Bucket == "" {
		return p, nil
	}
	if me.Secret != "" {
		secret, err := hex.DecodeString(me.Secret)
		if err != nil || len(secret) < 32 {
			return nil, errors.New("AUTH_MIRROR_SECRET must be at least 64 hex characters")
		}
		p.MirrorSecret = secret
	}
	mirror, err := s3client.New(ctx, s3client.Config{
		Endpoint:        me.Endpoint,
		Region:          me.Region,
		AccessKeyID:     me.AccessKeyID,
		SecretAccessKey: me.SecretAccessKey,
		BucketName:      me.Bucket,
		Prefix:          me.Prefix,
		UsePathStyle:    me.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("configure s3 mirror: %w", err)
	}
	if me.CreateBucket {
		if err := mirror.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	p.Mirror = mirror
	return p, nil
}

func captureConfig() sessioncapture.CaptureConfig {
	return sessioncapture.CaptureConfig{
		Credentials:    sessioncapture.TestCredentials,
		TriggerTimeout: flagTriggerTimeout,
		StepTimeout:    flagStepTimeout,
	}
}
