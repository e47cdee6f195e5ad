package main

import (
    "context"
    "errors"
    "flag"
    "io/fs"
    "log"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"

    "github.com/ccastromar/sourcemap-uploader/internal/app"
    "github.com/ccastromar/sourcemap-uploader/internal/config"
    "github.com/ccastromar/sourcemap-uploader/internal/metrics"
)

// runner is the minimal interface our app must satisfy for running.
type runner interface{ Run(context.Context) error }

// appCtor is a constructor indirection to enable testing without launching the real app.
var appCtor = func(env *config.EnvVars, manifest string) (runner, error) { return app.New(env, manifest) }

// loadEnv indirection lets tests inject configuration.
var loadEnv = config.LoadEnv

// fatalf indirection allows testing fatal paths without exiting the test process.
var fatalf = log.Fatalf

type options struct {
    manifest     string
    envFile      string
    printMetrics bool
}

func run(ctx context.Context, opts options) {
    if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
        fatalf("error loading %s: %v", opts.envFile, err)
        return
    }
    env, err := loadEnv()
    if err != nil {
        fatalf("error reading environment: %v", err)
        return
    }
    a, err := appCtor(env, opts.manifest)
    if err != nil {
        fatalf("error initializing app: %v", err)
        return
    }
    err = a.Run(ctx)
    if opts.printMetrics {
        metrics.WriteText(os.Stderr)
    }
    if err != nil {
        fatalf("upload failed: %v", err)
        return
    }
}

func main() {
    // CLI flags
    manifest := flag.String("manifest", "sourcemaps.yaml", "YAML manifest listing the source maps to upload")
    envFile := flag.String("env-file", ".env", "dotenv file read before the environment")
    printMetrics := flag.Bool("metrics", false, "print upload metrics to stderr when done")
    flag.Parse()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    run(ctx, options{manifest: *manifest, envFile: *envFile, printMetrics: *printMetrics})
}
