package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"redscrape/pkg/auth"
)

// solverCmd represents the solver command
var solverCmd = &cobra.Command{
	Use:   "solver",
	Short: "Manage the captcha solver service",
	Long: `Manage the captcha solving service used for challenge resolution.

The API key is stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (REDSCRAPE_SOLVER_API_KEY)`,
}

// solverLoginCmd represents the solver login command
var solverLoginCmd = &cobra.Command{
	Use:   "login [provider]",
	Short: "Store a solver API key securely",
	Long: `Store a captcha solver API key in the system keychain or an
encrypted file. The key is prompted for and hidden as you type.`,
	Example: `  # Interactive login for the default provider
  redscrape solver login

  # Name the provider explicitly
  redscrape solver login capsolver`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSolverLogin,
}

// solverLogoutCmd represents the solver logout command
var solverLogoutCmd = &cobra.Command{
	Use:   "logout [provider]",
	Short: "Remove a stored solver API key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSolverLogout,
}

// solverListCmd represents the solver list command
var solverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored solver credentials",
	Long:  `List stored solver credentials with the API key masked.`,
	RunE:  runSolverList,
}

// solverBalanceCmd represents the solver balance command
var solverBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check the solver account balance",
	RunE:  runSolverBalance,
}

func init() {
	rootCmd.AddCommand(solverCmd)
	solverCmd.AddCommand(solverLoginCmd)
	solverCmd.AddCommand(solverLogoutCmd)
	solverCmd.AddCommand(solverListCmd)
	solverCmd.AddCommand(solverBalanceCmd)
}

func runSolverLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	provider := "capsolver"
	if len(args) > 0 {
		provider = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(provider); existing != nil {
		fmt.Printf("A key for %q is already stored. Replace it? (y/N): ", provider)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Printf("API key for %s (hidden as you type): ", provider)
	apiKey, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	fmt.Println()
	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	fmt.Print("Endpoint URL (press Enter for default): ")
	endpoint, _ := reader.ReadString('\n')
	endpoint = strings.TrimSpace(endpoint)

	cred := &auth.Credential{
		Provider: provider,
		APIKey:   apiKey,
		Endpoint: endpoint,
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	masked := auth.SanitizeCredential(cred)
	fmt.Printf("Stored key %s for provider %s\n", masked.APIKey, provider)
	return nil
}

func runSolverLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	provider := "capsolver"
	if len(args) > 0 {
		provider = args[0]
	}

	if err := manager.Delete(provider); err != nil {
		return err
	}
	fmt.Printf("Removed credential for %s\n", provider)
	return nil
}

func runSolverList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Println("No stored solver credentials.")
		fmt.Println("Run 'redscrape solver login' to store one.")
		return nil
	}

	for _, cred := range creds {
		masked := auth.SanitizeCredential(cred)
		fmt.Printf("%-12s %s", masked.Provider, masked.APIKey)
		if masked.Endpoint != "" {
			fmt.Printf("  %s", masked.Endpoint)
		}
		fmt.Println()
	}
	return nil
}

func runSolverBalance(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(false)
	if err != nil {
		return err
	}

	balance, err := a.solver.Balance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Solver balance: $%.3f\n", balance)
	return nil
}

// readPassword reads a line without echoing it to the terminal.
func readPassword() (string, error) {
	data, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
