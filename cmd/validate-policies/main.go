package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/priorauth-notify/policy"
)

/* validate-policies - Standalone CLI tool to validate a delivery policies file
 * Usage: go run cmd/validate-policies/main.go [policies.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	policiesFile := "policies.yaml"
	if len(os.Args) > 1 {
		policiesFile = os.Args[1]
	}

	fmt.Printf("Validating policies file: %s\n", policiesFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := policy.NewLoader()
	if err := loader.Load(policiesFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Defaults fill in whatever the file leaves out
	loaded := loader.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Effective %d polic(ies):\n", len(loaded))

	for i, p := range loaded {
		fmt.Printf("\n%d. Policy: %s\n", i+1, p.Name)
		fmt.Printf("   Timeout:     %s\n", p.Timeout)
		fmt.Printf("   Max Retries: %d\n", p.MaxRetries)
		fmt.Printf("   Retry Delay: %s\n", p.RetryDelay)
		fmt.Printf("   Attempts:    %d\n", p.Attempts())
	}

	fmt.Printf("\n✓ All policies are valid!\n")
	os.Exit(0)
}
