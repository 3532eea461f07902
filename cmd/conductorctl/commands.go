package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/agent-conductor/conductord/internal/model"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage orchestration sessions",
	}

	var provider, profile, workingDir string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a session with its supervisor terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			var t model.Terminal
			err := call(http.MethodPost, "/sessions", map[string]string{
				"provider":      provider,
				"agent_profile": profile,
				"working_dir":   workingDir,
			}, &t)
			if err != nil {
				return err
			}
			return printJSON(t)
		},
	}
	create.Flags().StringVar(&provider, "provider", "claude_code", "agent provider kind")
	create.Flags().StringVar(&profile, "profile", "", "agent profile name")
	create.Flags().StringVar(&workingDir, "dir", "", "working directory for the terminal")

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions and their terminals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessions []model.Session
			if err := call(http.MethodGet, "/sessions", nil, &sessions); err != nil {
				return err
			}
			return printJSON(sessions)
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a session and all its terminals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodDelete, "/sessions/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func spawnCmd() *cobra.Command {
	var provider, profile, role, workingDir string
	cmd := &cobra.Command{
		Use:   "spawn <session>",
		Short: "Spawn a worker terminal in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t model.Terminal
			err := call(http.MethodPost, "/sessions/"+url.PathEscape(args[0])+"/terminals", map[string]string{
				"provider":      provider,
				"agent_profile": profile,
				"role":          role,
				"working_dir":   workingDir,
			}, &t)
			if err != nil {
				return err
			}
			return printJSON(t)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "claude_code", "agent provider kind")
	cmd.Flags().StringVar(&profile, "profile", "", "agent profile name")
	cmd.Flags().StringVar(&role, "role", "worker", "terminal role")
	cmd.Flags().StringVar(&workingDir, "dir", "", "working directory for the terminal")
	return cmd
}

func sendCmd() *cobra.Command {
	var message, supervisor, metadata string
	var requiresApproval bool
	cmd := &cobra.Command{
		Use:   "send <terminal-id>",
		Short: "Send input to a terminal's agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			err := call(http.MethodPost, "/terminals/"+url.PathEscape(args[0])+"/input", map[string]any{
				"message":           message,
				"requires_approval": requiresApproval,
				"supervisor_id":     supervisor,
				"metadata":          metadata,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "text to send")
	cmd.Flags().BoolVar(&requiresApproval, "requires-approval", false, "park the command as an approval request")
	cmd.Flags().StringVar(&supervisor, "supervisor", "", "supervisor terminal id for approval requests")
	cmd.Flags().StringVar(&metadata, "metadata", "", "freeform metadata for approval requests")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func outputCmd() *cobra.Command {
	var last bool
	cmd := &cobra.Command{
		Use:   "output <terminal-id>",
		Short: "Capture a terminal's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/terminals/" + url.PathEscape(args[0]) + "/output"
			if last {
				path += "?mode=last"
			}
			var out map[string]string
			if err := call(http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			fmt.Println(out["output"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "only the most recent agent answer")
	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <terminal-id>",
		Short: "Delete a terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodDelete, "/terminals/"+url.PathEscape(args[0]), nil, nil)
		},
	}
}

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Terminal-to-terminal message queue",
	}

	var sender string
	send := &cobra.Command{
		Use:   "send <receiver-id> <message>",
		Short: "Queue a message for a terminal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m model.InboxMessage
			err := call(http.MethodPost, "/inbox", map[string]string{
				"sender_id":   sender,
				"receiver_id": args[0],
				"message":     args[1],
			}, &m)
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
	send.Flags().StringVar(&sender, "from", "operator", "sender id")

	list := &cobra.Command{
		Use:   "list <terminal-id>",
		Short: "List a terminal's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []model.InboxMessage
			if err := call(http.MethodGet, "/inbox/"+url.PathEscape(args[0]), nil, &msgs); err != nil {
				return err
			}
			return printJSON(msgs)
		},
	}

	deliver := &cobra.Command{
		Use:   "deliver <terminal-id>",
		Short: "Deliver a terminal's pending messages now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]int
			if err := call(http.MethodPost, "/inbox/"+url.PathEscape(args[0])+"/deliver", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.AddCommand(send, list, deliver)
	return cmd
}

func approvalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Human-in-the-loop approval requests",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/approvals"
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}
			var approvals []model.ApprovalRequest
			if err := call(http.MethodGet, path, nil, &approvals); err != nil {
				return err
			}
			return printJSON(approvals)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (PENDING, APPROVED, DENIED)")

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a request and execute its command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a model.ApprovalRequest
			if err := call(http.MethodPost, "/approvals/"+url.PathEscape(args[0])+"/approve", nil, &a); err != nil {
				return err
			}
			return printJSON(a)
		},
	}

	var reason string
	deny := &cobra.Command{
		Use:   "deny <id>",
		Short: "Deny a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a model.ApprovalRequest
			err := call(http.MethodPost, "/approvals/"+url.PathEscape(args[0])+"/deny",
				map[string]string{"reason": reason}, &a)
			if err != nil {
				return err
			}
			return printJSON(a)
		},
	}
	deny.Flags().StringVar(&reason, "reason", "", "denial reason, relayed to the requesting terminal")

	cmd.AddCommand(list, approve, deny)
	return cmd
}

func flowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Registered flow definitions",
	}

	var filePath, schedule, profile, script string
	register := &cobra.Command{
		Use:   "register <name>",
		Short: "Register or replace a flow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := model.Flow{
				Name:         args[0],
				FilePath:     filePath,
				Schedule:     schedule,
				AgentProfile: profile,
				Script:       script,
				Enabled:      true,
			}
			if err := call(http.MethodPost, "/flows", f, &f); err != nil {
				return err
			}
			return printJSON(f)
		},
	}
	register.Flags().StringVar(&filePath, "file", "", "flow definition file path")
	register.Flags().StringVar(&schedule, "schedule", "", "cron-style schedule annotation")
	register.Flags().StringVar(&profile, "profile", "", "agent profile the flow runs with")
	register.Flags().StringVar(&script, "script", "", "inline flow script")

	list := &cobra.Command{
		Use:   "list",
		Short: "List flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			var flows []model.Flow
			if err := call(http.MethodGet, "/flows", nil, &flows); err != nil {
				return err
			}
			return printJSON(flows)
		},
	}

	setEnabled := func(use, short, suffix string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <name>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var f model.Flow
				if err := call(http.MethodPost, "/flows/"+url.PathEscape(args[0])+suffix, nil, &f); err != nil {
					return err
				}
				return printJSON(f)
			},
		}
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodDelete, "/flows/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	cmd.AddCommand(register, list,
		setEnabled("enable", "Enable a flow", "/enable"),
		setEnabled("disable", "Disable a flow", "/disable"),
		del)
	return cmd
}
