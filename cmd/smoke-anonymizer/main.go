// Command smoke-anonymizer runs one end-to-end flow against a live API:
// signin, submit an article, trigger the auto anonymization and verify the
// anonymous masked view.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("ANONPRESS_SMOKE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	username := os.Getenv("ANONPRESS_SMOKE_USER")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ANONPRESS_SMOKE_PASSWORD")
	if password == "" {
		log.Fatal("ANONPRESS_SMOKE_PASSWORD is required")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var token struct {
		Token string `json:"token"`
	}
	mustCall(client, http.MethodPost, baseURL+"/v1/auth/token", "", map[string]any{
		"username": username,
		"password": password,
	}, http.StatusOK, &token)
	if token.Token == "" {
		log.Fatal("empty token issued")
	}

	raw := "The UN is said to meet in New-York according to Donald Trump."
	var doc struct {
		ObjectID string `json:"object_id"`
		Source   string `json:"source"`
	}
	mustCall(client, http.MethodPost, baseURL+"/v1/articles", token.Token, map[string]any{
		"source":   "smoke",
		"headline": "smoke test",
		"raw_text": raw,
	}, http.StatusCreated, &doc)

	articleURL := baseURL + "/v1/articles/" + doc.Source + "/" + doc.ObjectID

	var anonymized struct {
		AutoAnonymizedText string `json:"auto_anonymized_text"`
	}
	mustCall(client, http.MethodPost, articleURL+"/anonymize", token.Token, nil, http.StatusOK, &anonymized)

	// Anonymous readers must never see the raw text.
	var masked struct {
		RawText string `json:"raw_text"`
	}
	mustCall(client, http.MethodGet, articleURL, "", nil, http.StatusOK, &masked)
	if masked.RawText == raw {
		log.Fatal("raw text leaked to anonymous reader")
	}

	mustCall(client, http.MethodDelete, articleURL, token.Token, nil, http.StatusNoContent, nil)

	fmt.Printf("anonymizer smoke test passed: article=%s auto_text=%q\n", doc.ObjectID, anonymized.AutoAnonymizedText)
}

func mustCall(client *http.Client, method, url, token string, body any, wantStatus int, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode response: %v", err)
		}
	}
}
