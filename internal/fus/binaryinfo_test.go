package fus

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestRetrieveBinaryInfoFirstAttempt(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{200}
	srv := f.server()
	defer srv.Close()
	c := newTestClient(srv)

	req := BinaryInfoRequest{
		Region:   "BTU",
		Model:    "SM-G960F",
		Firmware: "G960FXXU2CRLI/G960FOXM2CRLI/G960FXXU2CRLI/G960FXXU2CRLI",
		TACSeed:  "35439911",
	}
	meta, sess, err := c.RetrieveBinaryInfo(context.Background(), req)
	if err != nil {
		t.Fatalf("RetrieveBinaryInfo: %v", err)
	}
	if f.informCalls != 1 {
		t.Errorf("inform calls = %d, want 1", f.informCalls)
	}
	if sess == nil || sess.Nonce == "" {
		t.Error("no live session returned")
	}

	if meta.Filename != "SM-G960F_1_FAC.zip.enc2" {
		t.Errorf("filename = %q", meta.Filename)
	}
	if meta.RemotePath() != "/neofus/910/SM-G960F_1_FAC.zip.enc2" {
		t.Errorf("remote path = %q", meta.RemotePath())
	}
	if meta.DecryptedFilename() != "SM-G960F_1_FAC.zip" {
		t.Errorf("decrypted filename = %q", meta.DecryptedFilename())
	}
	if meta.Size != 4500000000 {
		t.Errorf("size = %d", meta.Size)
	}
	if meta.EncryptionVersion != 2 {
		t.Errorf("encryption version = %d, want 2", meta.EncryptionVersion)
	}
	if want := c.Crypto().DeriveKeyV2(req.Firmware, req.Model, req.Region); !bytes.Equal(meta.DecryptKey, want) {
		t.Errorf("v2 key = %x, want %x", meta.DecryptKey, want)
	}
	if meta.ChangelogURL != "https://doc.example/changelog" {
		t.Errorf("changelog = %q", meta.ChangelogURL)
	}
	if len(meta.Identity) != 15 {
		t.Errorf("identity %q is not a full IMEI", meta.Identity)
	}
}

func TestRetrieveBinaryInfoV4Key(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{200}
	f.binaryName = "SM-G960F_1_FAC.zip.enc4"
	f.latestFW = "G960FXXU9FVG4/G960FOXM9FVG4/G960FXXU9FVG4/G960FXXU9FVG4"
	srv := f.server()
	defer srv.Close()
	c := newTestClient(srv)

	meta, _, err := c.RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	if err != nil {
		t.Fatalf("RetrieveBinaryInfo: %v", err)
	}
	if meta.EncryptionVersion != 4 {
		t.Errorf("encryption version = %d, want 4", meta.EncryptionVersion)
	}
	want, err := c.Crypto().DeriveKeyV4(f.latestFW, "factoryvalue")
	if err != nil {
		t.Fatalf("DeriveKeyV4: %v", err)
	}
	if !bytes.Equal(meta.DecryptKey, want) {
		t.Errorf("v4 key = %x, want %x", meta.DecryptKey, want)
	}
}

func TestRetrieveBinaryInfoV4MissingFactory(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{200}
	f.binaryName = "SM-G960F_1_FAC.zip.enc4"
	// latestFW stays empty, so the response carries neither the latest
	// firmware nor the logic value factory.
	srv := f.server()
	defer srv.Close()

	_, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	if err == nil {
		t.Fatal("expected error for v4 binary without key material")
	}
}

func TestRetrieveBinaryInfoRetriesRejectedIdentity(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{408, 408, 200}
	srv := f.server()
	defer srv.Close()

	_, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	if err != nil {
		t.Fatalf("RetrieveBinaryInfo: %v", err)
	}
	if f.informCalls != 3 {
		t.Errorf("inform calls = %d, want 3", f.informCalls)
	}
	// Every attempt must run on a fresh session.
	if f.nonceCalls != 3 {
		t.Errorf("nonce calls = %d, want 3", f.nonceCalls)
	}
}

func TestRetrieveBinaryInfoExhaustsAttempts(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{408, 408, 408, 408, 408, 408}
	srv := f.server()
	defer srv.Close()

	_, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("err = %v, want ErrMaxAttemptsExceeded", err)
	}
	if f.informCalls != 5 {
		t.Errorf("inform calls = %d, want exactly 5", f.informCalls)
	}
}

func TestRetrieveBinaryInfoUnauthorized(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{401}
	srv := f.server()
	defer srv.Close()

	_, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if f.informCalls != 1 {
		t.Errorf("inform calls = %d, want 1: 401 is terminal", f.informCalls)
	}
}

func TestRetrieveBinaryInfoUnexpectedStatus(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{500}
	srv := f.server()
	defer srv.Close()

	_, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Errorf("err = %v, want StatusError with code 500", err)
	}
}

func TestRetrieveBinaryInfoExplicitIdentity(t *testing.T) {
	f := newFakeFUS(t)
	f.informStatus = []int{200}
	srv := f.server()
	defer srv.Close()

	meta, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware,
		Identity: "354399110012349",
	})
	if err != nil {
		t.Fatalf("RetrieveBinaryInfo: %v", err)
	}
	if meta.Identity != "354399110012349" {
		t.Errorf("identity = %q, want the caller-supplied IMEI", meta.Identity)
	}
}

func TestRetrieveBinaryInfoRequiresSeed(t *testing.T) {
	f := newFakeFUS(t)
	srv := f.server()
	defer srv.Close()

	_, _, err := newTestClient(srv).RetrieveBinaryInfo(context.Background(), BinaryInfoRequest{
		Region: "BTU", Model: "SM-UNKNOWN", Firmware: testFirmware,
	})
	if err == nil {
		t.Fatal("expected error without identity or TAC seed")
	}
	if f.nonceCalls != 0 {
		t.Error("no network traffic expected when the request cannot be built")
	}
}

func TestRetrieveBinaryInfoCancelledContext(t *testing.T) {
	f := newFakeFUS(t)
	srv := f.server()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newTestClient(srv).RetrieveBinaryInfo(ctx, BinaryInfoRequest{
		Region: "BTU", Model: "SM-G960F", Firmware: testFirmware, TACSeed: "35439911",
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
