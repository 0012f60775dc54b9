package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/ashureev/autopdf/internal/agent"
	"github.com/ashureev/autopdf/internal/config"
	"github.com/ashureev/autopdf/internal/domain"
	"github.com/ashureev/autopdf/internal/playai"
)

func newServerClient(cmd *cobra.Command) *resty.Client {
	server, _ := cmd.Flags().GetString("server")
	return resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
}

// newAgentsCmd creates the agents command
func newAgentsCmd() *cobra.Command {
	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agents on a running AutoPDF server",
	}
	agentsCmd.PersistentFlags().String("server", "http://localhost:8080", "AutoPDF server URL")

	agentsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Agents []domain.Agent `json:"agents"`
			}
			resp, err := newServerClient(cmd).R().
				SetContext(cmd.Context()).
				SetResult(&result).
				Get("/api/agents")
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}
			if resp.IsError() {
				return fmt.Errorf("list agents: %d %s", resp.StatusCode(), resp.String())
			}
			return printAgents(cmd.OutOrStdout(), result.Agents)
		},
	})

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			voiceName, _ := cmd.Flags().GetString("voice")

			resp, err := newServerClient(cmd).R().
				SetContext(cmd.Context()).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]string{
					"name":        args[0],
					"description": description,
					"voice":       resolveVoice(voiceName),
				}).
				Post("/api/create-agent")
			if err != nil {
				return fmt.Errorf("create agent: %w", err)
			}
			if resp.IsError() {
				return fmt.Errorf("create agent: %d %s", resp.StatusCode(), resp.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.String())
			return nil
		},
	}
	createCmd.Flags().String("description", "", "Agent prompt/description")
	createCmd.Flags().String("voice", "Jennifer", "Voice name or value")
	agentsCmd.AddCommand(createCmd)

	return agentsCmd
}

func printAgents(out io.Writer, agents []domain.Agent) error {
	if len(agents) == 0 {
		fmt.Fprintln(out, "No agents")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Name, a.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

// newChatCmd creates the chat command
func newChatCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			if !cfg.PlayAI.Enabled() {
				return fmt.Errorf("PLAY_AI_API_KEY is not set")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			client := playai.NewClient(cfg.PlayAI)
			return runChat(ctx, client, client.APIKey(), agentID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("agent", "", "Agent ID")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

// runChat reads lines from in and prints finished agent messages to out. A
// failed send is reported and the next line retries the connection.
func runChat(ctx context.Context, initiator agent.Initiator, apiKey, agentID string, in io.Reader, out io.Writer) error {
	session := agent.NewSession(agent.SessionConfig{
		Initiator: initiator,
		APIKey:    apiKey,
		OnEvent: func(ev agent.Event) {
			switch {
			case ev.Kind == agent.EventMessage && ev.Update.Message.Role == domain.RoleAgent && !ev.Update.Pending:
				fmt.Fprintf(out, "agent> %s\n", ev.Update.Message.Text)
			case ev.Kind == agent.EventError:
				fmt.Fprintf(out, "error> %s\n", ev.Err)
			}
		},
	})
	defer session.Close()
	session.SelectAgent(agentID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := session.Send(ctx, line); err != nil {
				fmt.Fprintf(out, "error> %v\n", err)
			}
		}
	}
}
