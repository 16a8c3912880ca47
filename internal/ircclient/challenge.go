package ircclient

import (
	"context"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // the CHALLENGE protocol is defined in terms of SHA1, not a choice made here
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"maskwatch/internal/config"
)

// OperUp brings the connection up to operator status, using plaintext
// OPER when cfg.Oper.File is empty, or the RSA CHALLENGE handshake
// otherwise.
func (c *Client) OperUp(ctx context.Context, cfg config.Oper) error {
	if cfg.File == "" {
		return c.Send("OPER", cfg.Name, cfg.Pass)
	}
	return c.operChallenge(ctx, cfg.Name, cfg.File, cfg.Pass)
}

// operChallenge runs the RSA CHALLENGE handshake: CHALLENGE <name>, then
// numeric 740 (RPL_RSACHALLENGE2) base64 chunks until 741
// (RPL_ENDOFRSACHALLENGE2), then decrypts the concatenated blob with the
// oper's RSA private key and replies CHALLENGE +<sha1-hex-of-plaintext>.
func (c *Client) operChallenge(ctx context.Context, name, keyFile, keyPass string) error {
	key, err := loadChallengeKey(keyFile, keyPass)
	if err != nil {
		return fmt.Errorf("ircclient: load challenge key %s: %w", keyFile, err)
	}
	if err := c.Send("CHALLENGE", name); err != nil {
		return err
	}

	var b64 strings.Builder
	for {
		line, err := c.WaitFor(ctx, Numeric(RplRSAChallenge2), Numeric(RplEndOfRSAChall2))
		if err != nil {
			return fmt.Errorf("ircclient: waiting for CHALLENGE response: %w", err)
		}
		if line.Command == RplRSAChallenge2 {
			if len(line.Params) > 1 {
				b64.WriteString(line.Params[1])
			}
			continue
		}
		break // RPL_ENDOFRSACHALLENGE2
	}

	encrypted, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return fmt.Errorf("ircclient: decode CHALLENGE payload: %w", err)
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, key, encrypted)
	if err != nil {
		return fmt.Errorf("ircclient: decrypt CHALLENGE payload: %w", err)
	}

	sum := sha1.Sum(plaintext) //nolint:gosec // protocol-mandated digest
	return c.Send("CHALLENGE", "+"+hex.EncodeToString(sum[:]))
}

// loadChallengeKey reads a PEM-encoded RSA private key, optionally
// encrypted with pass (the historical PEM-cipher encoding some CHALLENGE
// keys still use).
func loadChallengeKey(path, pass string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // SA1019: the legacy PEM cipher is what CHALLENGE keys historically use
		der, err = x509.DecryptPEMBlock(block, []byte(pass)) //nolint:staticcheck // SA1019: see above
		if err != nil {
			return nil, fmt.Errorf("decrypt key: %w", err)
		}
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}
	return key, nil
}
