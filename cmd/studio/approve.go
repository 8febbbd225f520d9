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

	"github.com/charmbracelet/huh"
	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
	"github.com/spf13/cobra"
)

func approveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Review and resolve pending exec approvals interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = os.Getenv("STUDIO_TOKEN")
			}
			return runApprove(addr, token)
		},
	}
	cmd.Flags().String("addr", "http://127.0.0.1:8080", "Gateway base URL")
	cmd.Flags().String("token", "", "Bearer token (defaults to $STUDIO_TOKEN)")
	return cmd
}

func runApprove(addr, token string) error {
	client := &gatewayClient{
		base:  strings.TrimRight(addr, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}

	pending, err := client.listApprovals()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No approvals pending.")
		return nil
	}

	options := make([]huh.Option[string], 0, len(pending))
	for _, ap := range pending {
		options = append(options, huh.NewOption(approvalLabel(ap), ap.ID))
	}

	var (
		id       string
		decision string
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Pending approvals").
				Options(options...).
				Value(&id),
			huh.NewSelect[string]().
				Title("Decision").
				Options(
					huh.NewOption("Allow once", string(approval.DecisionAllowOnce)),
					huh.NewOption("Allow always", string(approval.DecisionAllowAlways)),
					huh.NewOption("Deny", string(approval.DecisionDeny)),
				).
				Value(&decision),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if err := client.resolve(id, decision); err != nil {
		return err
	}
	fmt.Printf("Approval %s resolved: %s\n", id, decision)
	return nil
}

// approvalLabel renders one picker line. Long commands are trimmed so the
// list stays readable.
func approvalLabel(ap approval.Approval) string {
	command := ap.Command
	if len(command) > 60 {
		command = command[:57] + "..."
	}
	scope := ap.AgentID
	if scope == "" {
		scope = "unscoped"
	}
	return fmt.Sprintf("%s  [%s]  %s", ap.ID, scope, command)
}

type gatewayClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *gatewayClient) listApprovals() ([]approval.Approval, error) {
	req, err := http.NewRequest(http.MethodGet, c.base+"/api/approvals", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var pending []approval.Approval
	if err := json.Unmarshal(body, &pending); err != nil {
		return nil, fmt.Errorf("decoding approvals: %w", err)
	}
	return pending, nil
}

func (c *gatewayClient) resolve(id, decision string) error {
	payload, err := json.Marshal(map[string]string{"decision": decision})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+"/api/approvals/"+id+"/resolve", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

func (c *gatewayClient) do(req *http.Request) ([]byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
