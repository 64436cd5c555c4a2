package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	matrxversion "github.com/aimatrx/matrx/internal/version"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show client and engine versions",
		RunE:  runVersion,
	}
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := matrxversion.String()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var engineVersion string
	var engineReachable bool
	var engineErr error
	c, err := connectEngine(ctx)
	if err == nil {
		defer c.Close()
		v, verr := c.Version(ctx)
		if verr == nil {
			engineReachable = true
			engineVersion = v
		} else {
			engineErr = verr
		}
	} else {
		engineErr = err
	}

	if out.jsonMode {
		data := map[string]any{
			"client": clientVersion,
		}
		if engineReachable {
			if engineVersion != "" {
				data["engine"] = engineVersion
			} else {
				data["engine"] = "unknown"
			}
			if w := matrxversion.MismatchWarning(engineVersion); w != "" {
				data["mismatch"] = true
				data["warning"] = w
			}
		} else {
			data["engine"] = nil
			if engineErr != nil {
				data["engine_error"] = engineErr.Error()
			}
		}
		return out.Print(data)
	}

	fmt.Printf("Client: %s\n", matrxversion.Display(clientVersion))
	if engineReachable {
		if engineVersion != "" {
			fmt.Printf("Engine: %s\n", matrxversion.Display(engineVersion))
		} else {
			fmt.Println("Engine: running (version unknown)")
		}
		if w := matrxversion.MismatchWarning(engineVersion); w != "" {
			fmt.Println(w)
		}
	} else {
		fmt.Printf("Engine: unavailable (%v)\n", engineErr)
	}

	return nil
}
