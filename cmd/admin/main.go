package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Operator CLI for the admin recovery endpoints. Talks to a running server;
// every action requires ADMIN_SECRET and is attributed to -admin-id.
type AdminCLI struct {
	baseURL string
	secret  string
	adminID string
	client  *http.Client
}

func main() {
	_ = godotenv.Load()

	var (
		baseURL = flag.String("url", getEnv("ADMIN_API_URL", "http://localhost:8080"), "Base URL of the payment service")
		adminID = flag.String("admin-id", getEnv("ADMIN_ID", ""), "Acting admin identifier, recorded on every override")
		action  = flag.String("action", "", "Action to perform")
		txnID   = flag.String("txn", "", "Gateway transaction ID (force-success)")
		orderID = flag.String("order", "", "Order ID (confirm-order)")
		subID   = flag.String("subscription", "", "Subscription ID (approve/reject-subscription)")
		note    = flag.String("note", "", "Audit note explaining the override")
	)
	flag.Parse()

	if *action == "" {
		fmt.Println("Usage: admin -action=<action> [options]")
		fmt.Println("Actions:")
		fmt.Println("  force-success        - Force a gateway transaction to success (-txn, -note)")
		fmt.Println("  confirm-order        - Confirm a stuck order without gateway verification (-order)")
		fmt.Println("  fulfill-order        - Record completed out-of-band delivery for an order (-order)")
		fmt.Println("  approve-subscription - Approve a pending vendor subscription (-subscription, -note)")
		fmt.Println("  reject-subscription  - Reject a pending vendor subscription (-subscription, -note)")
		fmt.Println("  reconcile            - Trigger a manual reconciliation run")
		fmt.Println("  logs                 - Show recent reconciliation runs")
		os.Exit(1)
	}

	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		log.Fatal("ADMIN_SECRET is required")
	}
	if *adminID == "" {
		log.Fatal("-admin-id (or ADMIN_ID) is required")
	}

	cli := &AdminCLI{
		baseURL: *baseURL,
		secret:  secret,
		adminID: *adminID,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}

	switch *action {
	case "force-success":
		cli.forceSuccess(*txnID, *note)
	case "confirm-order":
		cli.confirmOrder(*orderID)
	case "fulfill-order":
		cli.fulfillOrder(*orderID)
	case "approve-subscription":
		cli.settleSubscription("approve", *subID, *note)
	case "reject-subscription":
		cli.settleSubscription("reject", *subID, *note)
	case "reconcile":
		cli.reconcile()
	case "logs":
		cli.logs()
	default:
		fmt.Printf("Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

func (cli *AdminCLI) forceSuccess(txnID, note string) {
	if txnID == "" {
		log.Fatal("-txn is required")
	}
	if note == "" {
		log.Fatal("-note is required: every override needs an audit note")
	}
	cli.post("/admin/transactions/force-success", map[string]string{
		"transaction_id": txnID,
		"note":           note,
	})
}

func (cli *AdminCLI) confirmOrder(orderID string) {
	if orderID == "" {
		log.Fatal("-order is required")
	}
	cli.post("/admin/orders/confirm", map[string]string{
		"order_id": orderID,
	})
}

func (cli *AdminCLI) fulfillOrder(orderID string) {
	if orderID == "" {
		log.Fatal("-order is required")
	}
	cli.post("/admin/orders/fulfill", map[string]string{
		"order_id": orderID,
	})
}

func (cli *AdminCLI) settleSubscription(verb, subID, note string) {
	if subID == "" {
		log.Fatal("-subscription is required")
	}
	cli.post("/admin/subscriptions/"+verb, map[string]string{
		"subscription_id": subID,
		"note":            note,
	})
}

func (cli *AdminCLI) reconcile() {
	cli.post("/admin/reconcile", nil)
}

func (cli *AdminCLI) logs() {
	req, err := http.NewRequest(http.MethodGet, cli.baseURL+"/admin/reconcile/logs", nil)
	if err != nil {
		log.Fatal(err)
	}
	cli.send(req)
}

func (cli *AdminCLI) post(path string, body map[string]string) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatal(err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, cli.baseURL+path, payload)
	if err != nil {
		log.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cli.send(req)
}

func (cli *AdminCLI) send(req *http.Request) {
	req.Header.Set("X-Admin-Secret", cli.secret)
	req.Header.Set("X-Admin-ID", cli.adminID)

	resp, err := cli.client.Do(req)
	if err != nil {
		log.Fatal("request failed: ", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal("read response: ", err)
	}

	// Pretty-print JSON responses, pass anything else through as-is
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}

	fmt.Printf("%s %s\n%s\n", resp.Status, req.URL.Path, data)
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
