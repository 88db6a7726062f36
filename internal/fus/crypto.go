package fus

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"fmt"
)

// SessionCrypto is the vendor byte-transform capability the protocol
// depends on. The protocol, retry, and streaming logic only ever call
// through this interface, so the transform can be swapped or stubbed in
// tests without touching them.
//
// The two key-derivation variants correspond to the two encryption
// versions a delivered binary can carry (selected by filename suffix):
// v2 keys derive from local inputs, v4 keys derive from server-supplied
// response fields.
type SessionCrypto interface {
	// DecodeNonce decrypts the opaque nonce issued by the server.
	DecodeNonce(raw string) (string, error)

	// DeriveSignature computes the request signature for a decoded nonce.
	DeriveSignature(nonce string) (string, error)

	// LogicCheck authenticates a request field: a deterministic value
	// computed from the decoded nonce and an input of at least 16
	// characters. Shorter inputs are an error: the server rejects the
	// value they would produce, so the misuse surfaces at the caller.
	LogicCheck(input, nonce string) (string, error)

	// DeriveKeyV2 derives the file decryption key for encryption
	// version 2 binaries.
	DeriveKeyV2(version, model, region string) []byte

	// DeriveKeyV4 derives the file decryption key for encryption
	// version 4 binaries from the server's latest-firmware and
	// logic-value-factory response fields.
	DeriveKeyV4(latestVersion, logicValue string) ([]byte, error)
}

// Fixed key material for the Kies transform. The first 16 bytes of the
// derived key are indexed out of kiesKey1 by the nonce, the rest is
// kiesKey2 verbatim.
const (
	kiesKey1 = "vicopx7dqu06emacgpnpy8j8zwhduwlh"
	kiesKey2 = "9u7qab84rpc16gvk"
)

// kiesCrypto is the production SessionCrypto: the Kies 2.0 transform
// spoken by neofussvr.
type kiesCrypto struct{}

// NewKiesCrypto returns the SessionCrypto implementation for the live
// FUS servers.
func NewKiesCrypto() SessionCrypto {
	return kiesCrypto{}
}

func (kiesCrypto) DecodeNonce(raw string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("nonce is not valid base64: %w", err)
	}
	plain, err := aesCBCDecrypt(data, []byte(kiesKey1))
	if err != nil {
		return "", fmt.Errorf("nonce decrypt failed: %w", err)
	}
	return string(plain), nil
}

func (kiesCrypto) DeriveSignature(nonce string) (string, error) {
	if len(nonce) < 16 {
		return "", fmt.Errorf("nonce too short for signature: %d bytes", len(nonce))
	}
	key := make([]byte, 32)
	for i := 0; i < 16; i++ {
		key[i] = kiesKey1[int(nonce[i])%16]
	}
	copy(key[16:], kiesKey2)

	sig, err := aesCBCEncrypt([]byte(nonce), key)
	if err != nil {
		return "", fmt.Errorf("signature derivation failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (kiesCrypto) LogicCheck(input, nonce string) (string, error) {
	if len(input) < 16 {
		return "", fmt.Errorf("logic check input %q shorter than 16 characters", input)
	}
	out := make([]byte, 0, len(nonce))
	for _, c := range nonce {
		out = append(out, input[int(c)&0xf])
	}
	return string(out), nil
}

func (kiesCrypto) DeriveKeyV2(version, model, region string) []byte {
	sum := md5.Sum([]byte(region + ":" + model + ":" + version))
	return sum[:]
}

func (c kiesCrypto) DeriveKeyV4(latestVersion, logicValue string) ([]byte, error) {
	check, err := c.LogicCheck(latestVersion, logicValue)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum([]byte(check))
	return sum[:], nil
}

func aesCBCEncrypt(input, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(input, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(out, padded)
	return out, nil
}

func aesCBCDecrypt(input, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(input) == 0 || len(input)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not block aligned", len(input))
	}
	out := make([]byte, len(input))
	cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(out, input)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("invalid padding: empty data")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding size: %d", padding)
	}
	for i := 0; i < padding; i++ {
		if data[len(data)-1-i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding byte at offset %d", i)
		}
	}
	return data[:len(data)-padding], nil
}
