package main

import (
	"fmt"
	"os"

	"github.com/howeyc/gopass"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "ynab2ledger"
	keyringUser    = "api-token"
	tokenEnvVar    = "YNAB_TOKEN"
)

// resolveToken finds the API token: explicit flag, then environment, then
// the OS keyring, then an interactive prompt. A prompted token is saved to
// the keyring on a best-effort basis so the next run does not ask again.
func resolveToken(flagToken string) (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	if env := os.Getenv(tokenEnvVar); env != "" {
		return env, nil
	}

	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	token, err = inputToken()
	if err != nil {
		return "", err
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		fmt.Fprintf(os.Stderr, "FYI: Cannot save token to keyring: %s\n", err.Error())
	}
	return token, nil
}

func inputToken() (string, error) {
	fmt.Fprint(os.Stderr, "Enter YNAB API token: ")
	byteToken, err := gopass.GetPasswd()
	if err != nil {
		return "", err
	}
	return string(byteToken), nil
}
