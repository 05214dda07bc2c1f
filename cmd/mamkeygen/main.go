// Command mamkeygen generates, inspects and exercises ternary MSS
// signing keys backed by the container package.
package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"github.com/urfave/cli"

	"github.com/iota-mam/mamcore/container"
	"github.com/iota-mam/mamcore/internal/mamlog"
	"github.com/iota-mam/mamcore/mss"
	"github.com/iota-mam/mamcore/trinary"
)

// randomTrits returns n cryptographically random balanced trits.
func randomTrits(n int) []trinary.Trit {
	out := make([]trinary.Trit, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, big.NewInt(3))
		if err != nil {
			panic(fmt.Sprintf("mamkeygen: crypto/rand failed: %s", err))
		}
		out[i] = trinary.Trit(v.Int64()) - 1
	}
	return out
}

func cmdAlgs(c *cli.Context) error {
	for _, name := range mss.ListNames() {
		p := mss.ParamsFromName(name)
		fmt.Printf("%-10s h=%-3d L=%-3d H=%-3d sigs=%d\n", name, p.SubtreeHeight, p.Levels, p.H(), p.SigCount())
	}
	return nil
}

func cmdKeygen(c *cli.Context) error {
	path := c.Args().Get(0)
	if path == "" {
		return cli.NewExitError("mamkeygen keygen: a key path is required", 1)
	}

	var params mss.Params
	if name := c.String("alg"); name != "" {
		p := mss.ParamsFromName(name)
		if p == nil {
			return cli.NewExitError(fmt.Sprintf("mamkeygen keygen: unknown algorithm %q (see `mamkeygen algs`)", name), 1)
		}
		params = *p
	} else {
		params = mss.FromDepth(uint32(c.Int("depth")))
	}

	seed := randomTrits(243)
	nonce := randomTrits(18)

	mamlog.Log("generating key at %s: h=%d l=%d H=%d", path, params.SubtreeHeight, params.Levels, params.H())

	sk, err := mss.Generate(seed, nonce, params.SubtreeHeight, params.Levels)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen keygen: %s", err), 1)
	}

	ctr, cerr := container.OpenFSPrivateKeyContainer(path)
	if cerr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen keygen: %s", cerr), 1)
	}
	defer ctr.Close()

	if ctr.Initialized() != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen keygen: %s already contains a key", path), 1)
	}
	if cerr := ctr.Reset(sk); cerr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen keygen: %s", cerr), 1)
	}

	trytes, terr := trinary.TritsToTrytes(sk.PublicKey().Bytes())
	if terr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen keygen: %s", terr), 1)
	}
	fmt.Printf("public key: %s\n", trytes)
	fmt.Printf("capacity:   %d signatures\n", params.SigCount())
	return nil
}

func cmdSign(c *cli.Context) error {
	path := c.Args().Get(0)
	messageTrytes := c.Args().Get(1)
	if path == "" || messageTrytes == "" {
		return cli.NewExitError("mamkeygen sign: usage: mamkeygen sign <path> <message-trytes>", 1)
	}

	ctr, cerr := container.OpenFSPrivateKeyContainer(path)
	if cerr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: %s", cerr), 1)
	}
	defer ctr.Close()

	if ctr.Initialized() == nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: %s does not contain a key", path), 1)
	}

	sk, merr := ctr.Load()
	if merr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: %s", merr), 1)
	}

	message, err := messageToTrits(messageTrytes)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: %s", err), 1)
	}

	sig, merr := sk.Sign(message)
	if merr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: %s", merr), 1)
	}
	if cerr := ctr.Save(sk); cerr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: failed to persist sigs_used: %s", cerr), 1)
	}

	trytes, terr := trinary.TritsToTrytes(sig.Bytes())
	if terr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen sign: %s", terr), 1)
	}
	fmt.Println(trytes)
	mamlog.Log("signed with %s: sigs_used=%d remaining=%d", path, sig.SigsUsed, sk.SigsRemaining())
	return nil
}

func cmdVerify(c *cli.Context) error {
	pkTrytes := c.Args().Get(0)
	messageTrytes := c.Args().Get(1)
	sigTrytes := c.Args().Get(2)
	if pkTrytes == "" || messageTrytes == "" || sigTrytes == "" {
		return cli.NewExitError("mamkeygen verify: usage: mamkeygen verify <pubkey-trytes> <message-trytes> <sig-trytes>", 1)
	}

	pkTrits, err := trinary.TrytesToTrits(pkTrytes)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen verify: %s", err), 1)
	}
	pk, merr := mss.PublicKeyFromTrits(pkTrits)
	if merr != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen verify: %s", merr), 1)
	}

	message, err := messageToTrits(messageTrytes)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen verify: %s", err), 1)
	}

	sigTrits, err := trinary.TrytesToTrits(sigTrytes)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("mamkeygen verify: %s", err), 1)
	}
	sig, ok := mss.SignatureFromTrits(sigTrits)
	if !ok {
		fmt.Println("INVALID (malformed signature)")
		return cli.NewExitError("", 1)
	}

	if pk.Verify(message, sig) {
		fmt.Println("VALID")
		return nil
	}
	fmt.Println("INVALID")
	return cli.NewExitError("", 1)
}

// messageToTrits pads or truncates the trytes-decoded message to the
// 231-trit (77-tryte) width a WOTS leaf signs.
func messageToTrits(trytes string) ([]trinary.Trit, error) {
	trits, err := trinary.TrytesToTrits(trytes)
	if err != nil {
		return nil, err
	}
	const want = 77 * 3
	if len(trits) >= want {
		return trits[:want], nil
	}
	out := make([]trinary.Trit, want)
	copy(out, trits)
	return out, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "mamkeygen"
	app.Usage = "generate and exercise ternary MSS signing keys"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v", Usage: "log diagnostic information to stderr"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("v") {
			mamlog.EnableLogging()
		}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:   "algs",
			Usage:  "list named MSS configurations",
			Action: cmdAlgs,
		},
		{
			Name:      "keygen",
			Usage:     "generate a new key in a filesystem container",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "alg", Usage: "named configuration, see `mamkeygen algs`"},
				cli.IntFlag{Name: "depth", Value: 10, Usage: "total tree height, used when -alg is not given"},
			},
			Action: cmdKeygen,
		},
		{
			Name:      "sign",
			Usage:     "sign a message with a stored key, consuming one leaf",
			ArgsUsage: "<path> <message-trytes>",
			Action:    cmdSign,
		},
		{
			Name:      "verify",
			Usage:     "verify a signature against a public key",
			ArgsUsage: "<pubkey-trytes> <message-trytes> <sig-trytes>",
			Action:    cmdVerify,
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
