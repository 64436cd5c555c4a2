package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newToolsCommand() *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List and invoke engine tools",
	}

	listCmd := &cobra.Command{
		Use:           "list",
		Short:         "List the tools the engine exposes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          toolsList,
	}

	invokeCmd := &cobra.Command{
		Use:           "invoke <tool>",
		Short:         "Invoke a tool by name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          toolsInvoke,
	}
	invokeCmd.Flags().String("input", "", "JSON object passed to the tool as input")
	invokeCmd.Flags().String("save-image", "", "Write a returned image to this file")

	toolsCmd.AddCommand(listCmd, invokeCmd)
	return toolsCmd
}

func toolsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := connectEngine(ctx)
	if err != nil {
		return engineUnreachable(out, err)
	}
	defer c.Close()

	tools, err := c.ListTools(ctx)
	if err != nil {
		return out.Error("Failed to list tools", err)
	}

	if out.jsonMode {
		return out.Print(map[string]any{"tools": tools, "count": len(tools)})
	}
	if len(tools) == 0 {
		fmt.Println("No tools available")
		return nil
	}
	for _, tool := range tools {
		fmt.Println(tool)
	}
	return nil
}

func toolsInvoke(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	tool := args[0]

	rawInput, _ := cmd.Flags().GetString("input")
	var input map[string]any
	if strings.TrimSpace(rawInput) != "" {
		if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
			return out.Error("Invalid --input JSON", err)
		}
	}

	// Tools can run real browser work; give them room.
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	c, err := connectEngine(ctx)
	if err != nil {
		return engineUnreachable(out, err)
	}
	defer c.Close()

	result, err := c.InvokeTool(ctx, tool, input)
	if err != nil {
		return out.Error(fmt.Sprintf("Tool %s failed", tool), err)
	}

	savePath, _ := cmd.Flags().GetString("save-image")
	var savedTo string
	if savePath != "" && result.Image != nil {
		if err := saveToolImage(result.Image, savePath); err != nil {
			return out.Error("Failed to save image", err)
		}
		savedTo = savePath
	}

	if out.jsonMode {
		data := map[string]any{
			"type":   result.Type,
			"output": result.Output,
		}
		if result.Metadata != nil {
			data["metadata"] = result.Metadata
		}
		if savedTo != "" {
			data["image_saved_to"] = savedTo
		} else if result.Image != nil {
			data["image"] = result.Image
		}
		return out.Print(data)
	}

	if result.Type == "error" {
		return out.Error(fmt.Sprintf("Tool %s returned an error", tool), fmt.Errorf("%s", result.Output))
	}
	if result.Output != "" {
		fmt.Println(result.Output)
	}
	if savedTo != "" {
		fmt.Printf("Image written to %s\n", savedTo)
	} else if result.Image != nil {
		fmt.Println("(result includes an image; rerun with --save-image <path> to keep it)")
	}
	return nil
}

// saveToolImage decodes the engine's image payload ({media_type, base64_data})
// and writes the raw bytes to path.
func saveToolImage(image map[string]any, path string) error {
	encoded, _ := image["base64_data"].(string)
	if encoded == "" {
		return fmt.Errorf("image payload has no base64_data field")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode image data: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
