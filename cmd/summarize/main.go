// Command summarize is a demo client for the gateway: it sends a block of
// text to /v1/chat/completions with an issued API key and streams the
// model's one-paragraph summary to stdout.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagBaseURL string
	flagAPIKey  string
	flagModel   string
	flagFile    string
)

func main() {
	_ = godotenv.Load()

	cmd := &cobra.Command{
		Use:          "summarize",
		Short:        "Summarize text through the Ollama gateway",
		Long:         "Reads text from --file (or stdin) and asks the gateway to summarize it, streaming the reply.",
		SilenceUsage: true,
		RunE:         run,
	}

	cmd.Flags().StringVar(&flagBaseURL, "base-url", envOr("GATEWAY_BASE_URL", "http://localhost:8000"), "gateway base URL")
	cmd.Flags().StringVar(&flagAPIKey, "key", os.Getenv("GATEWAY_API_KEY"), "API key issued by the gateway dashboard")
	cmd.Flags().StringVar(&flagModel, "model", "llama3:8b", "model the key is bound to")
	cmd.Flags().StringVar(&flagFile, "file", "", "file to summarize (default: stdin)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(cmd *cobra.Command, args []string) error {
	if flagAPIKey == "" {
		return fmt.Errorf("an API key is required (--key or GATEWAY_API_KEY)")
	}

	text, err := readInput()
	if err != nil {
		return err
	}

	prompt := "Please provide a concise, one-paragraph summary of the following text:\n\n---\n\n" + text

	payload := map[string]any{
		"model": flagModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, flagBaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+flagAPIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach the gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	return streamReply(resp.Body)
}

func readInput() (string, error) {
	if flagFile != "" {
		data, err := os.ReadFile(flagFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// streamReply prints the content deltas of an SSE chat-completion stream
// as they arrive.
func streamReply(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			fmt.Print(choice.Delta.Content)
		}
	}
	fmt.Println()
	return scanner.Err()
}
