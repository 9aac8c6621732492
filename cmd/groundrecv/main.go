// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/aria-sdk/telemetry/internal/config"
	"github.com/aria-sdk/telemetry/pkg/ccem"
	"github.com/aria-sdk/telemetry/pkg/compress"
	"github.com/aria-sdk/telemetry/pkg/crypto"
	"github.com/aria-sdk/telemetry/pkg/fec"
	"github.com/aria-sdk/telemetry/pkg/packet"
	"github.com/aria-sdk/telemetry/pkg/pipeline"
	"github.com/aria-sdk/telemetry/pkg/stats"
	"github.com/aria-sdk/telemetry/pkg/transport"
)

// VERSION is injected by build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "groundrecv"
	myApp.Usage = "ground-station telemetry consumer"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: "0.0.0.0:9630",
			Usage: "stream transport listen address",
		},
		cli.StringFlag{
			Name:  "compression",
			Value: "fast",
			Usage: "fast (snappy) or balanced (zstd)",
		},
		cli.IntFlag{
			Name:  "reassembly-timeout",
			Value: 5,
			Usage: "seconds before an incomplete message is evicted",
		},
		cli.IntFlag{
			Name:  "max-in-flight",
			Value: 100,
			Usage: "maximum concurrently in-flight fragmented messages",
		},
		cli.BoolFlag{
			Name:  "fec",
			Usage: "enable FEC block reconstruction (mirrors sender's -fec != off)",
		},
		cli.IntFlag{
			Name:  "fec-block-timeout",
			Value: 5,
			Usage: "seconds before an incomplete FEC block is evicted",
		},
		cli.IntFlag{
			Name:  "rx-dejitter-size",
			Value: 32,
			Usage: "reorder buffer lookahead before a gap is declared",
		},
		cli.Float64Flag{
			Name:  "rx-dejitter-max-wait",
			Value: 1.0,
			Usage: "seconds a buffered fragment may wait before a flush",
		},
		cli.StringFlag{
			Name:  "crypto",
			Value: "none",
			Usage: "none or symmetric",
		},
		cli.StringFlag{
			Name:  "signing-seed-hex",
			Usage: "32-byte hex Ed25519 seed (symmetric crypto)",
		},
		cli.StringFlag{
			Name:  "encryption-key-hex",
			Usage: "32-byte hex secretbox key (symmetric crypto)",
		},
		cli.StringFlag{
			Name:  "statslog",
			Usage: "collect stats to file, aware of time format, like: ./stats-20060102.csv",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 10,
			Usage: "stats collection period, in seconds",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-envelope delivery logging",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "config from json file, which will override the command from shell",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		cfg := config.Default()
		cfg.TransportHost = c.String("listen")
		cfg.Compression = c.String("compression")
		cfg.ReassemblyTimeoutSec = c.Int("reassembly-timeout")
		cfg.MaxInFlightMessages = c.Int("max-in-flight")
		if c.Bool("fec") {
			cfg.Fec = "on"
		}
		cfg.FecBlockTimeoutSec = c.Int("fec-block-timeout")
		cfg.RxDeJitterSize = c.Int("rx-dejitter-size")
		cfg.RxDeJitterMaxWait = c.Float64("rx-dejitter-max-wait")
		cfg.Crypto = c.String("crypto")
		cfg.SigningSeedHex = c.String("signing-seed-hex")
		cfg.EncryptionKeyHex = c.String("encryption-key-hex")
		cfg.StatsLog = c.String("statslog")
		cfg.StatsPeriodSec = c.Int("statsperiod")
		cfg.Pprof = c.Bool("pprof")
		cfg.Log = c.String("log")
		cfg.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			loaded, err := config.LoadFile(cfg, c.String("c"))
			checkError(err)
			cfg = loaded
		}

		if cfg.Log != "" {
			f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		if cfg.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		compressor, err := compress.New(compressionKind(cfg.Compression), cfg.CompressionLevel)
		checkError(err)

		var cryptoBox *crypto.CryptoBox
		var verifyKey []byte
		if cfg.Crypto == "symmetric" {
			box, vk, err := buildSymmetricCryptoBox(cfg)
			checkError(err)
			cryptoBox, verifyKey = box, vk
		} else if cfg.Crypto != "none" && cfg.Crypto != "" {
			color.Red("groundrecv: unsupported crypto mode %q, proceeding without encryption", cfg.Crypto)
		}

		server, err := transport.Listen(cfg.TransportHost)
		checkError(err)
		log.Println("groundrecv: listening on", server.Addr())

		var counters stats.Counters
		done := make(chan struct{})
		defer close(done)
		go stats.CSVLogger(done, &counters, cfg.StatsLog, time.Duration(cfg.StatsPeriodSec)*time.Second)

		server.Handle = func(t *transport.StreamTransport) {
			defer t.Close()
			consumer := pipeline.NewConsumer(
				t,
				ccem.NewRxDeJitter(uint64(cfg.RxDeJitterSize), time.Duration(cfg.RxDeJitterMaxWait*float64(time.Second))),
				packet.NewDefragmenter(time.Duration(cfg.ReassemblyTimeoutSec)*time.Second, cfg.MaxInFlightMessages),
				compressor,
				&counters,
			)
			consumer.CryptoBox = cryptoBox
			consumer.CryptoVerify = verifyKey
			if cfg.Fec != "off" && cfg.Fec != "" {
				consumer.Fec = fec.NewReassembler(time.Duration(cfg.FecBlockTimeoutSec)*time.Second, cfg.MaxInFlightMessages)
			}

			ctx := context.Background()
			for {
				envs, err := consumer.Receive(ctx)
				if err != nil {
					if !cfg.Quiet {
						log.Println("groundrecv: connection ended:", err)
					}
					return
				}
				for _, env := range envs {
					line, _ := json.Marshal(env)
					fmt.Println(string(line))
				}
			}
		}

		return errors.Wrap(server.Serve(), "groundrecv: serve")
	}

	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func compressionKind(name string) compress.Kind {
	if name == "balanced" {
		return compress.Balanced
	}
	return compress.Fast
}

func buildSymmetricCryptoBox(cfg config.Config) (*crypto.CryptoBox, []byte, error) {
	seed, err := decodeHex(cfg.SigningSeedHex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "groundrecv: signing seed")
	}
	key, err := decodeHex(cfg.EncryptionKeyHex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "groundrecv: encryption key")
	}
	box, err := crypto.NewCryptoBox(seed, key)
	if err != nil {
		return nil, nil, err
	}
	return box, box.VerifyKey(), nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
