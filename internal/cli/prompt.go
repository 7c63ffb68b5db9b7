package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/cubeops/cubeops/internal/config"
	"github.com/cubeops/cubeops/internal/pipeline"
)

// promptIn is swapped for a scripted reader in tests.
var promptIn io.Reader = os.Stdin

// confirm asks the operator before a destructive action. --yes skips the
// prompt. Anything other than y/yes declines.
func confirm(question string) bool {
	if flagYes {
		return true
	}
	fmt.Printf("%s (y/n): ", question)
	scanner := bufio.NewScanner(promptIn)
	if !scanner.Scan() {
		return false
	}
	answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// registryCredentials resolves push credentials: environment first, then an
// interactive prompt when stdin is a terminal, otherwise a hard failure.
func registryCredentials(c *config.Config) pipeline.CredentialFunc {
	return func() (string, string, error) {
		if c.Registry.Username != "" && c.Registry.Password != "" {
			return c.Registry.Username, c.Registry.Password, nil
		}

		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", "", fmt.Errorf("registry credentials missing: set DOCKER_USERNAME and DOCKER_PASSWORD")
		}

		user := c.Registry.Username
		if user == "" {
			fmt.Print("Registry username: ")
			scanner := bufio.NewScanner(os.Stdin)
			if !scanner.Scan() {
				return "", "", fmt.Errorf("reading username: %w", scanner.Err())
			}
			user = strings.TrimSpace(scanner.Text())
		}

		fmt.Print("Registry password: ")
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("reading password: %w", err)
		}
		return user, string(password), nil
	}
}
