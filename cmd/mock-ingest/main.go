package main

import (
    "context"
    "errors"
    "flag"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/ccastromar/sourcemap-uploader/internal/mocks/ingest"
)

// server is what main needs from the mock ingest server.
type server interface{ Start(context.Context) error }

var newServer = func(addr string, b ingest.Behavior) server {
    return ingest.NewServer(addr, ingest.NewHandler(b))
}

var fatalf = log.Fatalf

func run(ctx context.Context, addr string, b ingest.Behavior) {
    if err := newServer(addr, b).Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
        fatalf("mock ingest: %v", err)
    }
}

func main() {
    addr := flag.String("addr", ":9000", "listen address")
    apiKey := flag.String("api-key", "", "only accept this api key")
    hang := flag.Int("hang-first", 0, "leave the first N requests unanswered")
    fail := flag.Int("fail-first", 0, "answer 500 to the next N requests")
    dups := flag.Bool("reject-duplicates", false, "answer 409 to repeated uploads without overwrite")
    flag.Parse()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    run(ctx, *addr, ingest.Behavior{
        APIKey:           *apiKey,
        HangFirst:        *hang,
        FailFirst:        *fail,
        RejectDuplicates: *dups,
    })
}
