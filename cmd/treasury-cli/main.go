package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// apiEndpoint and apiToken default to TREASURY_API_URL and TREASURY_TOKEN and
// can be overridden with --api and --token.
var (
	apiEndpoint = defaultAPIEndpoint()
	apiToken    = os.Getenv("TREASURY_TOKEN")
	httpClient  = &http.Client{Timeout: 30 * time.Second}

	// apiCall is swapped out in tests.
	apiCall = callAPI
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	command, rest := args[0], args[1:]
	switch command {
	case "generate-key":
		return runGenerateKey(rest, stdout, stderr)
	case "import-key":
		return runImportKey(rest, stdout, stderr)
	case "address":
		return runAddress(rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "init-config":
		return runInitConfig(rest, stdout, stderr)
	case "watch":
		return runWatch(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	}
	if cmd, ok := apiCommands[command]; ok {
		return cmd(rest, stdout, stderr)
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", command)
	fmt.Fprintln(stderr, usage())
	return 1
}

func usage() string {
	return strings.TrimSpace(`
Usage: treasury-cli [--api URL] [--token JWT] <command> [args]

Keys and configuration:
  generate-key <keystore>                 create an encrypted key (TREASURY_KEYSTORE_PASSPHRASE)
  import-key <keystore>                   encrypt the hex key in TREASURY_PRIVATE_KEY
  address <keystore>                      print the address held by a keystore
  token <address|keystore> [--ttl 1h]     sign a bearer token (TREASURY_JWT_SECRET)
  init-config <path> --owner A --authorities B,C [--required N]

Treasury:
  summary | owner | deposit <amount>
  authorities | is-authority <address> | add-authority <address> | remove-authority <address>
  threshold [N]

Proposals:
  propose --description D --amount N --recipient R
  proposals | proposal <id> | stage <id>
  vote <id> | release-initial <id> | report <id> <text> | approve-stage <id> | release-final <id>

Ledger:
  transfers [--from N --limit N] | journal [--from N --limit N] | verify
  audit [--proposal ID --type T --caller A] | export [--proposal ID]
  watch [--cursor N]`)
}

func defaultAPIEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("TREASURY_API_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--api" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--api" {
				apiEndpoint = args[i+1]
			} else {
				apiToken = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--api="):
			apiEndpoint = strings.TrimPrefix(arg, "--api=")
		case strings.HasPrefix(arg, "--token="):
			apiToken = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

type apiError struct {
	Status  int
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

// callAPI performs the request and returns the response body. Mutating
// requests carry TREASURY_IDEMPOTENCY_KEY, or a fresh key when it is unset.
func callAPI(method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(apiEndpoint, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(apiToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		key := strings.TrimSpace(os.Getenv("TREASURY_IDEMPOTENCY_KEY"))
		if key == "" {
			key = uuid.NewString()
		}
		req.Header.Set("Idempotency-Key", key)
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		var envelope struct {
			Error apiError `json:"error"`
		}
		_ = json.Unmarshal(data, &envelope)
		envelope.Error.Status = res.StatusCode
		return nil, &envelope.Error
	}
	return data, nil
}

func printJSON(w io.Writer, data json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintln(w, out.String())
}
