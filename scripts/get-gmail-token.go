package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Developer helper: runs the Gmail OAuth consent flow locally and
// prints an access token usable as the triage server's bearer token.
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run get-gmail-token.go <client-id> <client-secret>")
		fmt.Println("\nRuns the Google OAuth consent flow and prints an access token")
		fmt.Println("for the Gmail readonly scope. Pass the token to the API as")
		fmt.Println("  Authorization: Bearer <access-token>")
		os.Exit(1)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     os.Args[1],
		ClientSecret: os.Args[2],
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8090/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
		},
	}

	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Println("\n1. Visit this URL in your browser and authorize the application:")
	fmt.Printf("\n%s\n", authURL)

	authCode := make(chan string)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			fmt.Fprint(w, "Error: no authorization code received")
			return
		}
		fmt.Fprint(w, "<html><body><h1>Authorization successful</h1><p>You can close this window.</p></body></html>")
		authCode <- code
	})

	server := &http.Server{Addr: ":8090", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	fmt.Println("\n2. Waiting for the redirect to http://localhost:8090/callback ...")
	code := <-authCode
	server.Shutdown(context.Background())

	token, err := oauthConfig.Exchange(context.Background(), code)
	if err != nil {
		log.Fatalf("Failed to exchange authorization code: %v", err)
	}

	fmt.Println("\n=== Tokens ===")
	fmt.Printf("Access Token:  %s\n", token.AccessToken)
	fmt.Printf("Refresh Token: %s\n", token.RefreshToken)
	fmt.Printf("Expiry:        %v\n", token.Expiry)

	tokenFile := "gmail-tokens.json"
	file, err := os.Create(tokenFile)
	if err != nil {
		log.Printf("Warning: could not save tokens: %v", err)
	} else {
		defer file.Close()
		json.NewEncoder(file).Encode(token)
		fmt.Printf("\nTokens saved to %s\n", tokenFile)
	}

	fmt.Println("\nTry it:")
	fmt.Printf("  curl -H \"Authorization: Bearer %s\" http://localhost:8080/api/emails/metadata\n", token.AccessToken)
}
