// ==============================================
// File: internal/chain/errors.go
// ==============================================
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/fossr-labs/fossr/internal/program"
)

// AnchorError is the error line an Anchor program writes to the transaction log.
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// RemoteError is a program failure reported by a remote node.
type RemoteError struct {
	Err  *program.Error
	Logs []string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("program error %d (%s): %s", e.Err.Code, e.Err.Name, e.Err.Msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

var customErrRe = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// ParseAnchorErrorLog parses a log line such as
// "Program log: AnchorError occurred. Error Code: AirdropNotReady. Error Number: 6010. Error Message: ...".
func ParseAnchorErrorLog(line string) (AnchorError, bool) {
	if !strings.Contains(line, "AnchorError") {
		return AnchorError{}, false
	}
	var out AnchorError
	if _, rest, ok := strings.Cut(line, "Error Code:"); ok {
		out.Name = strings.TrimSpace(strings.SplitN(rest, ".", 2)[0])
	}
	if _, rest, ok := strings.Cut(line, "Error Number:"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(rest, ".", 2)[0]))
		if err == nil {
			out.Code = n
		}
	}
	if _, rest, ok := strings.Cut(line, "Error Message:"); ok {
		out.Msg = strings.TrimSuffix(strings.TrimSpace(rest), ".")
	}
	return out, out.Name != "" || out.Code != 0
}

// programErrorFromLogs finds the program error in simulation or transaction logs.
func programErrorFromLogs(logs []string) (*program.Error, bool) {
	for _, line := range logs {
		if ae, ok := ParseAnchorErrorLog(line); ok {
			if perr, ok := program.ErrorByName(ae.Name); ok {
				return perr, true
			}
			if perr, ok := program.ErrorByCode(uint32(ae.Code)); ok {
				return perr, true
			}
		}
	}
	for _, line := range logs {
		if perr, ok := programErrorFromText(line); ok {
			return perr, true
		}
	}
	return nil, false
}

func programErrorFromText(s string) (*program.Error, bool) {
	m := customErrRe.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	code, err := strconv.ParseUint(m[1], 16, 32)
	if err != nil {
		return nil, false
	}
	return program.ErrorByCode(uint32(code))
}

// programErrorFromStatus decodes a transaction status error such as
// {"InstructionError":[0,{"Custom":6011}]}.
func programErrorFromStatus(status any) (*program.Error, bool) {
	m, ok := status.(map[string]any)
	if !ok {
		return nil, false
	}
	ie, ok := m["InstructionError"].([]any)
	if !ok || len(ie) != 2 {
		return nil, false
	}
	inner, ok := ie[1].(map[string]any)
	if !ok {
		return nil, false
	}
	var code uint64
	switch v := inner["Custom"].(type) {
	case float64:
		code = uint64(v)
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 32)
		if err != nil {
			return nil, false
		}
		code = n
	default:
		return nil, false
	}
	return program.ErrorByCode(uint32(code))
}

// classifySendError maps an RPC failure onto the program error taxonomy.
// Anything that is not a program rejection or a simulation failure is
// treated as the node being unreachable.
func classifySendError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %v", program.ErrTransient, err)
	}
	logs := rpcLogs(rpcErr)
	if perr, ok := programErrorFromLogs(logs); ok {
		return &RemoteError{Err: perr, Logs: logs}
	}
	if perr, ok := programErrorFromText(rpcErr.Message); ok {
		return &RemoteError{Err: perr, Logs: logs}
	}
	if strings.Contains(rpcErr.Message, "Transaction simulation failed") &&
		!strings.Contains(rpcErr.Message, "Blockhash not found") {
		return fmt.Errorf("simulation failed: %s", rpcErr.Message)
	}
	return fmt.Errorf("%w: %v", program.ErrTransient, err)
}

func rpcLogs(rpcErr *jsonrpc.RPCError) []string {
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := data["logs"].([]any)
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}
