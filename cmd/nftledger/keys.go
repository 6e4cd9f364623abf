package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"nftledger/crypto"
	"nftledger/rpc"
)

func loadSigner() (*crypto.PrivateKey, error) {
	pass, err := signerPass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(current.cfg.SignerKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock signer keystore: %w", err)
	}
	return key, nil
}

func addressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the signer keystore address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := loadSigner()
			if err != nil {
				return err
			}
			addr := key.PubKey().Address()
			fmt.Fprintf(cmd.OutOrStdout(), "hex:    %s\nbech32: %s\n", addr.Common().Hex(), addr.String())
			return nil
		},
	}
}

func signCommand() *cobra.Command {
	var (
		submit string
		nonce  uint64
	)
	cmd := &cobra.Command{
		Use:   "sign <method> <params-json>",
		Short: "Sign a ledger call with the signer keystore",
		Long: "Sign a ledger call with the signer keystore and print the request body.\n" +
			"With --submit the request is POSTed to the given API base URL, and the\n" +
			"signer nonce is fetched from that API unless --nonce is set.",
		Example: `  nftledger sign mint '{"operator":"0x...","collectionId":1,"to":"0x..."}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The request body carries params compacted, so sign the compact form.
			var compact bytes.Buffer
			if err := json.Compact(&compact, []byte(args[1])); err != nil {
				return fmt.Errorf("params are not valid JSON: %w", err)
			}
			method, params := args[0], json.RawMessage(compact.Bytes())
			key, err := loadSigner()
			if err != nil {
				return err
			}
			base := strings.TrimRight(strings.TrimSpace(submit), "/")
			if base != "" && !cmd.Flags().Changed("nonce") {
				if nonce, err = fetchNonce(base, key.PubKey().Address().Common().Hex()); err != nil {
					return fmt.Errorf("fetching signer nonce: %w", err)
				}
			}
			sig, err := key.Sign(crypto.CallDigest(current.cfg.NetworkName, method, nonce, params))
			if err != nil {
				return err
			}
			body, err := json.Marshal(rpc.CallRequest{
				Method:     method,
				Params:     params,
				Nonce:      nonce,
				Signatures: []string{hexutil.Encode(sig)},
			})
			if err != nil {
				return err
			}
			if base == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			return post(cmd.OutOrStdout(), base+"/v1/calls", body)
		},
	}
	cmd.Flags().StringVar(&submit, "submit", "", "API base URL to submit the signed call to")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "signer nonce to bind into the signature")
	return cmd
}

func fetchNonce(base, addr string) (uint64, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(base + "/v1/nonces/" + addr)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("nonce lookup: %s", resp.Status)
	}
	var out rpc.NonceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}

func post(out io.Writer, url string, body []byte) error {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, strings.TrimSpace(string(reply)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call rejected: %s", resp.Status)
	}
	return nil
}
