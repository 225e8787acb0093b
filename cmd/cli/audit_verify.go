package cli

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/infrastructure/audit"
)

// VerifyResult is the signature check outcome of one exported audit event.
type VerifyResult struct {
	ID        string `json:"id" yaml:"id"`
	EventType string `json:"event_type" yaml:"event_type"`
	Valid     bool   `json:"valid" yaml:"valid"`
}

func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with exported audit events",
	}

	var eventsFile, key string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify HMAC signatures of exported audit events",
		Long: `Reads a JSON array (or a single object) of audit events and checks each
signature with the given key. The key may be raw or "base64:"-prefixed; it falls
back to AEGIS_AUDIT_SIGNING_KEY. Exits non-zero when any event fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("AEGIS_AUDIT_SIGNING_KEY")
			}
			rawKey, err := decodeKey(key)
			if err != nil {
				return err
			}
			signer, err := audit.NewHMACSigner(rawKey)
			if err != nil {
				return err
			}

			events, err := readEvents(eventsFile)
			if err != nil {
				return err
			}
			results := VerifyEvents(signer, events)
			if err := render(cmd.OutOrStdout(), results, func(w io.Writer) { writeVerifyText(w, results) }); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Valid {
					return fmt.Errorf("signature verification failed for %d event(s)", countInvalid(results))
				}
			}
			return nil
		},
	}
	verifyCmd.Flags().StringVarP(&eventsFile, "file", "f", "", "exported audit events JSON file")
	verifyCmd.Flags().StringVarP(&key, "key", "k", "", "HMAC signing key")
	_ = verifyCmd.MarkFlagRequired("file")

	auditCmd.AddCommand(verifyCmd)
	return auditCmd
}

// VerifyEvents checks every event; unsigned events are invalid.
func VerifyEvents(signer *audit.HMACSigner, events []models.AuditEvent) []VerifyResult {
	results := make([]VerifyResult, 0, len(events))
	for _, e := range events {
		results = append(results, VerifyResult{
			ID:        e.ID,
			EventType: string(e.EventType),
			Valid:     e.Signature != "" && signer.Verify(e),
		})
	}
	return results
}

func decodeKey(key string) ([]byte, error) {
	if b64, ok := strings.CutPrefix(key, "base64:"); ok {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 key: %w", err)
		}
		return raw, nil
	}
	return []byte(key), nil
}

func readEvents(path string) ([]models.AuditEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var single models.AuditEvent
		if err := readJSONFile(path, &single); err != nil {
			return nil, err
		}
		return []models.AuditEvent{single}, nil
	}
	var events []models.AuditEvent
	if err := readJSONFile(path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func countInvalid(results []VerifyResult) int {
	n := 0
	for _, r := range results {
		if !r.Valid {
			n++
		}
	}
	return n
}

func writeVerifyText(w io.Writer, results []VerifyResult) {
	for _, r := range results {
		status := "ok"
		if !r.Valid {
			status = "INVALID"
		}
		fmt.Fprintf(w, "%-8s %s %s\n", status, r.ID, r.EventType)
	}
}

func init() {
	rootCmd.AddCommand(newAuditCmd())
}
