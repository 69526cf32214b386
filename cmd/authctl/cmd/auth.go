package cmd

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pilab-dev/shadow-auth/cmd/authctl/client"
	"github.com/pilab-dev/shadow-auth/cmd/authctl/config"
	"github.com/pilab-dev/shadow-auth/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const dataURIPrefix = "data:image/png;base64,"

// passwordReader is replaced in tests.
var passwordReader = readPassword

func currentClient() (*config.Context, *client.Client, error) {
	current, err := config.GetCurrentContext()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(current)
	if err != nil {
		return nil, nil, err
	}
	return current, c, nil
}

// readPassword prompts on stderr. Without a terminal the password is read as
// one line from in so the CLI can be scripted.
func readPassword(in io.Reader, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func saveToken(current *config.Context, token string) error {
	current.UserAuthToken = token
	return config.SaveConfig()
}

var captchaCmd = &cobra.Command{
	Use:   "captcha",
	Short: "Fetch a captcha challenge and write its image to a PNG file",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := currentClient()
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")

		issued, err := c.Captcha(cmd.Context())
		if err != nil {
			return err
		}

		png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(issued.Image, dataURIPrefix))
		if err != nil {
			return fmt.Errorf("captcha image is not base64 PNG: %w", err)
		}
		if err := os.WriteFile(out, png, 0o600); err != nil {
			return err
		}

		cmd.Printf("Captcha ID: %s\n", issued.ID)
		cmd.Printf("Image written to %s\n", out)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a local account and save the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, c, err := currentClient()
		if err != nil {
			return err
		}

		in := services.RegisterInput{}
		in.Handle, _ = cmd.Flags().GetString("username")
		in.Email, _ = cmd.Flags().GetString("email")
		in.Location, _ = cmd.Flags().GetString("city")
		in.ChallengeID, _ = cmd.Flags().GetString("captcha-id")
		in.ChallengeAnswer, _ = cmd.Flags().GetString("captcha")

		if in.Password, err = passwordReader(cmd.InOrStdin(), "Password: "); err != nil {
			return err
		}

		res, err := c.Register(cmd.Context(), in)
		if err != nil {
			return err
		}
		if err := saveToken(current, res.Token); err != nil {
			return err
		}
		cmd.Printf("Registered %s. Token saved for context '%s' (expires %s).\n",
			in.Handle, config.GlobalConfig.CurrentContext, res.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password and save the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, c, err := currentClient()
		if err != nil {
			return err
		}

		in := services.LoginInput{}
		in.Email, _ = cmd.Flags().GetString("email")
		in.ChallengeID, _ = cmd.Flags().GetString("captcha-id")
		in.ChallengeAnswer, _ = cmd.Flags().GetString("captcha")

		if in.Password, err = passwordReader(cmd.InOrStdin(), "Password: "); err != nil {
			return err
		}

		res, err := c.Login(cmd.Context(), in)
		if err != nil {
			return err
		}
		if err := saveToken(current, res.Token); err != nil {
			return err
		}
		cmd.Printf("Login successful. Token saved for context '%s'.\n", config.GlobalConfig.CurrentContext)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the token of the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := config.GetCurrentContext()
		if err != nil {
			return err
		}
		if current.UserAuthToken == "" {
			cmd.Println("Not logged in.")
			return nil
		}
		if err := saveToken(current, ""); err != nil {
			return err
		}
		cmd.Printf("Local token cleared for context '%s'.\n", config.GlobalConfig.CurrentContext)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity of the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := currentClient()
		if err != nil {
			return err
		}

		me, err := c.Me(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("ID:       %s\n", me.ID)
		cmd.Printf("Username: %s\n", me.Handle)
		cmd.Printf("Email:    %s\n", me.Email)
		cmd.Printf("Provider: %s\n", me.Origin)
		if me.DisplayName != "" {
			cmd.Printf("Name:     %s\n", me.DisplayName)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, c, err := currentClient()
		if err != nil {
			return err
		}

		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("%s %s: %s, database %s, up %s\n", st.Name, st.Version, st.Status, st.Database, st.Uptime)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captchaCmd, registerCmd, loginCmd, logoutCmd, whoamiCmd, statusCmd)

	captchaCmd.Flags().StringP("out", "o", "captcha.png", "file to write the captcha image to")

	registerCmd.Flags().String("username", "", "account handle")
	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().String("city", "", "location")
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().String("captcha-id", "", "id printed by 'authctl captcha'")
		c.Flags().String("captcha", "", "text shown in the captcha image")
		_ = c.MarkFlagRequired("captcha-id")
		_ = c.MarkFlagRequired("captcha")
	}
	loginCmd.Flags().String("email", "", "email address")
	_ = loginCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("city")
}
