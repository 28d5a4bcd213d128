package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fundtreasury/crypto"
)

type commandFunc func(args []string, stdout, stderr io.Writer) int

var apiCommands = map[string]commandFunc{
	"summary":          simpleGet("/v1/treasury"),
	"balance":          simpleGet("/v1/treasury"),
	"owner":            simpleGet("/v1/owner"),
	"authorities":      simpleGet("/v1/authorities"),
	"proposals":        simpleGet("/v1/proposals"),
	"verify":           simpleGet("/v1/journal/verify"),
	"is-authority":     addressCommand(http.MethodGet, "/v1/authorities/"),
	"remove-authority": addressCommand(http.MethodDelete, "/v1/authorities/"),
	"proposal":         proposalCommand(http.MethodGet, ""),
	"stage":            proposalCommand(http.MethodGet, "/stage"),
	"vote":             proposalCommand(http.MethodPost, "/votes"),
	"release-initial":  proposalCommand(http.MethodPost, "/release-initial"),
	"approve-stage":    proposalCommand(http.MethodPost, "/stage-approvals"),
	"release-final":    proposalCommand(http.MethodPost, "/release-final"),
	"transfers":        pagedGet("/v1/transfers"),
	"journal":          pagedGet("/v1/journal"),
	"deposit":          runDeposit,
	"add-authority":    runAddAuthority,
	"threshold":        runThreshold,
	"propose":          runPropose,
	"report":           runReport,
	"audit":            runAudit,
	"export":           runExport,
}

func execute(stdout, stderr io.Writer, method, path string, body any) int {
	data, err := apiCall(method, path, body)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, data)
	return 0
}

func simpleGet(path string) commandFunc {
	return func(args []string, stdout, stderr io.Writer) int {
		return execute(stdout, stderr, http.MethodGet, path, nil)
	}
}

func addressCommand(method, prefix string) commandFunc {
	return func(args []string, stdout, stderr io.Writer) int {
		if len(args) != 1 {
			fmt.Fprintln(stderr, "Error: expected exactly one address")
			return 1
		}
		addr, err := crypto.ParseAddress(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return execute(stdout, stderr, method, prefix+addr.Hex(), nil)
	}
}

func parseProposalID(args []string, stderr io.Writer) (uint64, bool) {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Error: proposal id required")
		return 0, false
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		fmt.Fprintf(stderr, "Error: invalid proposal id %q\n", args[0])
		return 0, false
	}
	return id, true
}

func proposalCommand(method, suffix string) commandFunc {
	return func(args []string, stdout, stderr io.Writer) int {
		id, ok := parseProposalID(args, stderr)
		if !ok {
			return 1
		}
		return execute(stdout, stderr, method, fmt.Sprintf("/v1/proposals/%d%s", id, suffix), nil)
	}
}

func pagedGet(path string) commandFunc {
	return func(args []string, stdout, stderr io.Writer) int {
		fs := flag.NewFlagSet(strings.TrimPrefix(path, "/v1/"), flag.ContinueOnError)
		fs.SetOutput(stderr)
		from := fs.Uint64("from", 0, "first index or sequence")
		limit := fs.Int("limit", 0, "maximum number of rows")
		if err := fs.Parse(args); err != nil {
			return 1
		}
		q := url.Values{}
		if *from > 0 {
			q.Set("from", strconv.FormatUint(*from, 10))
		}
		if *limit > 0 {
			q.Set("limit", strconv.Itoa(*limit))
		}
		return execute(stdout, stderr, http.MethodGet, withQuery(path, q), nil)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func runDeposit(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: usage: deposit <amount>")
		return 1
	}
	return execute(stdout, stderr, http.MethodPost, "/v1/deposits", map[string]string{"amount": args[0]})
}

func runAddAuthority(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: usage: add-authority <address>")
		return 1
	}
	addr, err := crypto.ParseAddress(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return execute(stdout, stderr, http.MethodPost, "/v1/authorities", map[string]string{"address": addr.Hex()})
}

func runThreshold(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return execute(stdout, stderr, http.MethodGet, "/v1/threshold", nil)
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid threshold %q\n", args[0])
		return 1
	}
	return execute(stdout, stderr, http.MethodPut, "/v1/threshold", map[string]uint64{"requiredApprovals": n})
}

func runPropose(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("propose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	description := fs.String("description", "", "what the funds are for")
	amount := fs.String("amount", "", "requested amount in base units")
	recipient := fs.String("recipient", "", "recipient address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*amount) == "" || strings.TrimSpace(*recipient) == "" {
		fmt.Fprintln(stderr, "Error: --amount and --recipient are required")
		return 1
	}
	return execute(stdout, stderr, http.MethodPost, "/v1/proposals", map[string]string{
		"description": *description,
		"amount":      *amount,
		"recipient":   *recipient,
	})
}

func runReport(args []string, stdout, stderr io.Writer) int {
	id, ok := parseProposalID(args, stderr)
	if !ok {
		return 1
	}
	report := strings.Join(args[1:], " ")
	return execute(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/proposals/%d/report", id), map[string]string{"report": report})
}

func runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	proposal := fs.Uint64("proposal", 0, "proposal id")
	eventType := fs.String("type", "", "event type, e.g. treasury.funds.released")
	caller := fs.String("caller", "", "caller address")
	from := fs.Uint64("from", 0, "first journal sequence")
	limit := fs.Int("limit", 0, "maximum number of records")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	q := url.Values{}
	if *proposal > 0 {
		q.Set("proposal", strconv.FormatUint(*proposal, 10))
	}
	if *eventType != "" {
		q.Set("type", *eventType)
	}
	if *caller != "" {
		q.Set("caller", *caller)
	}
	if *from > 0 {
		q.Set("from", strconv.FormatUint(*from, 10))
	}
	if *limit > 0 {
		q.Set("limit", strconv.Itoa(*limit))
	}
	return execute(stdout, stderr, http.MethodGet, withQuery("/v1/audit/records", q), nil)
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	proposal := fs.Uint64("proposal", 0, "proposal id")
	eventType := fs.String("type", "", "event type")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return execute(stdout, stderr, http.MethodPost, "/v1/audit/exports", map[string]any{
		"proposalId": *proposal,
		"eventType":  *eventType,
	})
}
