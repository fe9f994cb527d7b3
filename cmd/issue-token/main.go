package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/service"
	"golang.org/x/term"
)

// issue-token signs a student token for local testing against the stream and
// REST endpoints. Production tokens come from the identity provider.
func main() {
	var ttl time.Duration
	var promptSecret bool
	flag.DurationVar(&ttl, "ttl", 4*time.Hour, "Token lifetime")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	if interactive {
		fmt.Println("=== Issue Student Token ===")
	}

	// Student ID
	studentID, err := readInt(reader, interactive, "Enter Student ID: ", 0)
	if err != nil || studentID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: Student ID must be a positive number")
		os.Exit(1)
	}

	// Class ID
	classID, err := readInt(reader, interactive, "Enter Class ID (default 0): ", 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: Class ID must be a number")
		os.Exit(1)
	}

	// Secret
	if promptSecret {
		if !interactive {
			fmt.Fprintln(os.Stderr, "Error: -prompt-secret needs a terminal")
			os.Exit(1)
		}
		fmt.Print("Enter Signing Secret: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println() // Newline after secret input
		if err != nil || len(secret) == 0 {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		cfg.JWTSecret = string(secret)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).IssueStudentToken(studentID, classID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	if interactive {
		fmt.Printf("\nToken for student %d (valid %s):\n", studentID, ttl)
	}
	fmt.Println(token)
}

func readInt(reader *bufio.Reader, interactive bool, prompt string, fallback int) (int, error) {
	if interactive {
		fmt.Print(prompt)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return strconv.Atoi(line)
}
