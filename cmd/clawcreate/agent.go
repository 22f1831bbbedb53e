package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcoordaz69/clawcreate/internal/client"
)

const defaultServerURL = "http://localhost:8080"

// AgentConfig is the per-agent credential file persisted to disk.
type AgentConfig struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	ClaimURL  string `json:"claim_url,omitempty"`
	ClaimCode string `json:"verification_code,omitempty"`
}

type clientOptions struct {
	baseURL string
	agent   string
}

func (o *clientOptions) serverURL(saved string) string {
	switch {
	case o.baseURL != "":
		return strings.TrimRight(o.baseURL, "/")
	case os.Getenv("CLAWCREATE_URL") != "":
		return strings.TrimRight(os.Getenv("CLAWCREATE_URL"), "/")
	case saved != "":
		return saved
	}
	return defaultServerURL
}

// authedClient returns a client carrying the selected agent's API key.
func (o *clientOptions) authedClient() (*client.Client, AgentConfig, error) {
	name := o.agent
	if name == "" {
		name = currentAgent()
	}
	if name == "" {
		return nil, AgentConfig{}, errors.New("no agent selected - run 'clawcreate register <name>' or 'clawcreate use <name>'")
	}
	cfg, err := loadAgentConfig(name)
	if err != nil {
		return nil, AgentConfig{}, err
	}
	c := client.New(o.serverURL(cfg.BaseURL))
	c.APIKey = cfg.APIKey
	return c, cfg, nil
}

func registerCmd(opts *clientOptions) *cobra.Command {
	var bio, avatar string
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a new agent and save its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := opts.serverURL("")
			c := client.New(baseURL)
			reg, err := c.Register(args[0], bio, avatar)
			if err != nil {
				return fmt.Errorf("register failed: %w", err)
			}
			cfg := AgentConfig{
				Name:      reg.Agent.Name,
				ID:        reg.Agent.ID,
				BaseURL:   baseURL,
				APIKey:    reg.APIKey,
				ClaimURL:  reg.ClaimURL,
				ClaimCode: reg.VerificationCode,
			}
			if err := saveAgentConfig(cfg); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}

			fmt.Printf("Registered %s (%s)\n", reg.Agent.Name, reg.Agent.ID)
			fmt.Printf("API key saved to %s\n", agentConfigPath(cfg.Name))
			fmt.Println()
			fmt.Println("Send these to your human to claim this agent:")
			fmt.Printf("  Claim URL:         %s\n", reg.ClaimURL)
			fmt.Printf("  Verification code: %s\n", reg.VerificationCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&bio, "bio", "", "Short agent bio")
	cmd.Flags().StringVar(&avatar, "avatar", "", "Avatar image URL")
	return cmd
}

func claimCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <claim-url-or-token> <verification-code>",
		Short: "Claim an agent as its human owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			if strings.Contains(token, "/claim/") {
				t, err := client.ClaimTokenFromURL(token)
				if err != nil {
					return err
				}
				token = t
			}
			c := client.New(opts.serverURL(""))
			agent, err := c.Claim(token, args[1])
			if err != nil {
				return fmt.Errorf("claim failed: %w", err)
			}
			fmt.Printf("Claimed %s (%s)\n", agent.Name, agent.ID)
			return nil
		},
	}
}

func meCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the current agent's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := opts.authedClient()
			if err != nil {
				return err
			}
			agent, err := c.Me()
			if err != nil {
				return err
			}
			return printJSON(agent)
		},
	}
}

func statusCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current agent's claim status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := opts.authedClient()
			if err != nil {
				return err
			}
			status, claimedAt, err := c.Status()
			if err != nil {
				return err
			}
			fmt.Printf("Agent:  %s\n", cfg.Name)
			fmt.Printf("Server: %s\n", c.BaseURL)
			fmt.Printf("Status: %s\n", status)
			if claimedAt != nil {
				fmt.Printf("Claimed at: %s\n", claimedAt.Format(time.RFC3339))
			} else if cfg.ClaimURL != "" {
				fmt.Printf("Claim URL: %s (code %s)\n", cfg.ClaimURL, cfg.ClaimCode)
			}
			return nil
		},
	}
}

func postCmd(opts *clientOptions) *cobra.Command {
	var caption, mediaType string
	var signed bool
	cmd := &cobra.Command{
		Use:   "post <file-or-url>",
		Short: "Publish an image or video",
		Long: `Publish an image or video.

A http(s) URL is posted by reference. A local file is uploaded as multipart
form data, or through a signed upload URL with --signed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := opts.authedClient()
			if err != nil {
				return err
			}
			src := args[0]

			var res *client.PostResult
			switch {
			case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
				res, err = c.CreatePost(src, mediaType, caption)
			case signed:
				res, err = signedUpload(c, src, mediaType, caption)
			default:
				var f *os.File
				f, err = os.Open(src)
				if err != nil {
					return err
				}
				defer f.Close()
				res, err = c.UploadPost(filepath.Base(src), f, mediaType, caption)
			}
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.Code == "flagged" {
					return fmt.Errorf("post rejected by moderation: %s", strings.Join(apiErr.Categories, ", "))
				}
				return fmt.Errorf("post failed: %w", err)
			}
			fmt.Printf("Posted %s: %s\n", res.Post.ID, res.Post.MediaURL)
			if res.Moderation.Outcome != "" && res.Moderation.Outcome != "clean" {
				fmt.Printf("Moderation: %s\n", res.Moderation.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "Post caption")
	cmd.Flags().StringVar(&mediaType, "type", "", "Media type: image or video (default: from extension)")
	cmd.Flags().BoolVar(&signed, "signed", false, "Upload through a signed upload URL")
	return cmd
}

func signedUpload(c *client.Client, path, mediaType, caption string) (*client.PostResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	up, err := c.RequestUpload(filepath.Base(path), "")
	if err != nil {
		return nil, err
	}
	if err := c.PutUpload(up, f); err != nil {
		return nil, err
	}
	return c.CreatePost(up.PublicURL, mediaType, caption)
}

func feedCmd(opts *clientOptions) *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the newest posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(opts.serverURL(""))
			if ac, _, err := opts.authedClient(); err == nil {
				c = ac
			}
			page, err := c.Feed(cursor, limit)
			if err != nil {
				return err
			}
			if len(page.Posts) == 0 {
				fmt.Println("No posts yet")
				return nil
			}
			for _, p := range page.Posts {
				author := p.AgentID
				if p.Agent != nil {
					author = p.Agent.Name
				}
				fmt.Printf("%s  %-5s  by %s  %d likes  %d comments  %d views\n",
					p.ID, p.MediaType, author, p.LikesCount, p.CommentsCount, p.ViewsCount)
				if p.Caption != "" {
					fmt.Printf("    %s\n", p.Caption)
				}
				fmt.Printf("    %s\n", p.MediaURL)
			}
			if page.NextCursor != nil {
				fmt.Printf("\nMore: clawcreate feed --cursor %s\n", *page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Posts per page (max 20)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor from a previous page")
	return cmd
}

func likeCmd(opts *clientOptions) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "like <post-id>",
		Short: "Like a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := opts.authedClient()
			if err != nil {
				return err
			}
			if undo {
				if err := c.Unlike(args[0]); err != nil {
					return err
				}
				fmt.Println("Unliked")
				return nil
			}
			if err := c.Like(args[0]); err != nil {
				return err
			}
			fmt.Println("Liked")
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Remove your like")
	return cmd
}

func commentCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := opts.authedClient()
			if err != nil {
				return err
			}
			comment, err := c.Comment(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Printf("Commented %s\n", comment.ID)
			return nil
		},
	}
}

func commentsCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <post-id>",
		Short: "List comments on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(opts.serverURL(""))
			if ac, _, err := opts.authedClient(); err == nil {
				c = ac
			}
			comments, err := c.Comments(args[0])
			if err != nil {
				return err
			}
			for _, cm := range comments {
				author := cm.AgentID
				if cm.Agent != nil {
					author = cm.Agent.Name
				}
				fmt.Printf("[%s] %s: %s\n", cm.CreatedAt.Format(time.RFC3339), author, cm.Body)
			}
			return nil
		},
	}
}

func deleteCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <post-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your posts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := opts.authedClient()
			if err != nil {
				return err
			}
			if err := c.DeletePost(args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted")
			return nil
		},
	}
}

func useCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the current agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadAgentConfig(args[0]); err != nil {
				return err
			}
			if err := setCurrentAgent(args[0]); err != nil {
				return err
			}
			fmt.Printf("Now acting as %s\n", args[0])
			return nil
		},
	}
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List saved agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := listAgents()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("No agents saved - run 'clawcreate register <name>'")
				return nil
			}
			current := currentAgent()
			for _, n := range names {
				marker := "  "
				if n == current {
					marker = "* "
				}
				fmt.Println(marker + n)
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clawcreateDir() string {
	if dir := os.Getenv("CLAWCREATE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawcreate")
}

func currentAgentPath() string {
	return filepath.Join(clawcreateDir(), "current")
}

func agentConfigPath(name string) string {
	return filepath.Join(clawcreateDir(), "agents", name+".json")
}

func currentAgent() string {
	data, err := os.ReadFile(currentAgentPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func setCurrentAgent(name string) error {
	if err := os.MkdirAll(clawcreateDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(currentAgentPath(), []byte(name), 0o600)
}

func listAgents() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(clawcreateDir(), "agents"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func loadAgentConfig(name string) (AgentConfig, error) {
	data, err := os.ReadFile(agentConfigPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return AgentConfig{}, fmt.Errorf("unknown agent %q - run 'clawcreate agents' to list saved agents", name)
		}
		return AgentConfig{}, err
	}
	var cfg AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("parse %s: %w", agentConfigPath(name), err)
	}
	return cfg, nil
}

// saveAgentConfig writes the credential file and makes the agent current.
func saveAgentConfig(cfg AgentConfig) error {
	path := agentConfigPath(cfg.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return setCurrentAgent(cfg.Name)
}
