// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/echa/log"
	"github.com/fatih/color"

	"blockwatch.cc/certreg/pkg/client"
	"blockwatch.cc/certreg/pkg/integrity"
	"blockwatch.cc/certreg/pkg/issuer"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
	"blockwatch.cc/certreg/pkg/verifier"
)

var (
	nodeURL    string
	admin      string
	school     string
	student    string
	email      string
	identifier string
	name       string
	title      string
	grade      string
	expires    uint64
	fund       uint64
	scheme     string
	verifyOnly string
	code       string
	verbose    bool
	flags      = flag.NewFlagSet("sim", flag.ContinueOnError)
)

func init() {
	flags.Usage = func() {}
	flags.StringVar(&nodeURL, "node", "http://localhost:8080", "certificate node URL")
	flags.StringVar(&admin, "admin", "", "super admin principal, funds the school before issuing")
	flags.StringVar(&school, "school", "", "issuing school principal")
	flags.StringVar(&student, "student", "", "student wallet")
	flags.StringVar(&email, "email", "", "student email, resolved to a wallet when -student is empty")
	flags.StringVar(&identifier, "id", "", "student real-world identifier")
	flags.StringVar(&name, "name", "", "student name")
	flags.StringVar(&title, "title", "Introduction to Clarity", "course title")
	flags.StringVar(&grade, "grade", "", "grade")
	flags.Uint64Var(&expires, "expires", 0, "expiration height (0 never expires)")
	flags.Uint64Var(&fund, "fund", 1, "credits granted by -admin")
	flags.StringVar(&scheme, "scheme", string(integrity.SchemeCanonical), "document serialization scheme")
	flags.StringVar(&verifyOnly, "verify", "", "only verify a certificate id or tx id")
	flags.StringVar(&code, "code", "", "verification code for recipient proof")
	flags.BoolVar(&verbose, "v", false, "debug logging")
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	err := flags.Parse(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			fmt.Printf("Usage: %s [flags]\n", os.Args[0])
			fmt.Println("\nFlags")
			flags.PrintDefaults()
			return nil
		}
		return err
	}
	if verbose {
		log.SetLevel(log.LevelDebug)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c := client.New(nodeURL, nil)

	if verifyOnly != "" {
		return verify(ctx, c, verifyOnly, identifier, code)
	}

	if school == "" {
		return fmt.Errorf("Empty school")
	}
	if identifier == "" {
		return fmt.Errorf("Empty student identifier")
	}
	s := integrity.Scheme(scheme)
	if !s.IsValid() {
		return fmt.Errorf("%w: %s", integrity.ErrUnknownScheme, scheme)
	}

	stat, err := c.Status(ctx)
	if err != nil {
		return err
	}
	log.Infof("Node is at height %d, active manager %s", stat.Height, stat.ActiveManager)

	if admin != "" && fund > 0 {
		if err := fundSchool(ctx, c, stat.ActiveManager, stat.TxFee); err != nil {
			return err
		}
	}

	iss := issuer.New(c, c, c, issuer.Config{
		Registry: stat.Registry,
		Fee:      stat.TxFee,
		Scheme:   s,
	})
	req := issuer.Request{
		School:         stx.Principal(school),
		Student:        stx.Principal(student),
		StudentEmail:   email,
		Identifier:     identifier,
		GraduationDate: uint64(time.Now().Unix()),
		Document: integrity.Document{
			Certificate: integrity.Course{
				Title:        title,
				Modality:     "online",
				Hours:        "40",
				IssueDateISO: time.Now().UTC().Format("2006-01-02"),
				Language:     "en",
			},
			Recipient: integrity.Recipient{Name: name},
			Achievement: integrity.Achievement{
				Grade: grade,
			},
		},
	}
	if grade != "" {
		req.Grade = &grade
	}
	if expires > 0 {
		req.ExpirationHeight = &expires
	}
	res, err := iss.Issue(ctx, req)
	if err != nil {
		return err
	}
	color.Green("Issued certificate %d in tx %s at height %d", res.CertificateID, res.TxID, res.Height)
	fmt.Printf("  metadata  %s\n", res.MetadataURL)
	fmt.Printf("  data hash %s (%s)\n", res.DataHash, res.Scheme)
	color.Yellow("  verification code %s (hand to the student only)", res.VerificationCode)

	return verify(ctx, c, res.TxID.String(), identifier, res.VerificationCode)
}

func fundSchool(ctx context.Context, c *client.Client, mgr stx.Principal, fee stx.MicroStx) error {
	sender := stx.Principal(admin)
	nonce, err := c.Nonce(ctx, sender)
	if err != nil {
		return err
	}
	args, _ := json.Marshal(map[string]interface{}{"school": school, "amount": fund})
	rcpt, err := c.Submit(ctx, ledger.Transaction{
		Sender:   sender,
		Nonce:    nonce,
		Fee:      fee,
		Contract: mgr,
		Function: "admin-fund-school",
		Args:     args,
	})
	if err != nil {
		return err
	}
	if err := rcpt.Err(); err != nil {
		return fmt.Errorf("funding %s: %w", school, err)
	}
	var credits uint64
	if err := rcpt.Decode(&credits); err != nil {
		return fmt.Errorf("funding %s: reading credit balance: %w", school, err)
	}
	log.Infof("Funded %s with %d credits, balance %d", school, fund, credits)
	return nil
}

func verify(ctx context.Context, c *client.Client, input, identifier, code string) error {
	rep, err := c.Verify(ctx, input, identifier, code)
	if err != nil {
		return err
	}
	printReport(rep)
	return nil
}

func yesNo(ok bool) string {
	if ok {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func printReport(rep *verifier.Report) {
	bold := color.New(color.Bold)
	bold.Printf("Certificate %d\n", rep.CertificateID)
	if rep.TxID != "" {
		fmt.Printf("  tx             %s\n", rep.TxID)
	}
	fmt.Printf("  valid          %s\n", yesNo(rep.Valid))
	fmt.Printf("  revoked        %t\n", rep.Revoked)
	fmt.Printf("  expired        %t\n", rep.Expired)
	fmt.Printf("  hash verified  %s %s\n", yesNo(rep.HashVerified), rep.HashScheme)
	fmt.Printf("  on-chain hash  %s\n", rep.OnchainHash)
	if rep.ComputedHash != "" && rep.ComputedHash != rep.OnchainHash {
		fmt.Printf("  computed hash  %s\n", color.RedString(rep.ComputedHash))
	}
	if rep.RecipientVerified != nil {
		fmt.Printf("  recipient      %s\n", yesNo(*rep.RecipientVerified))
	}
	if rep.Error != "" {
		color.Red("  error: %s", strings.TrimSpace(rep.Error))
	}
}
