package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/doeshing/extscan-go/internal/infrastructure/cli"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}

	ctx := context.Background()
	root, rt := cli.NewRootCmd(ctx, cli.Options{Verbose: isVerbose()})

	err := root.ExecuteContext(ctx)
	if closeErr := rt.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func isVerbose() bool {
	return strings.EqualFold(os.Getenv("EXTSCAN_DEBUG"), "1") || strings.EqualFold(os.Getenv("EXTSCAN_DEBUG"), "true")
}
