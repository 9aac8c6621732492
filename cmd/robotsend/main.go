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
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
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
	"github.com/aria-sdk/telemetry/pkg/envelope"
	"github.com/aria-sdk/telemetry/pkg/fec"
	"github.com/aria-sdk/telemetry/pkg/packet"
	"github.com/aria-sdk/telemetry/pkg/pipeline"
	"github.com/aria-sdk/telemetry/pkg/qos"
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
	myApp.Name = "robotsend"
	myApp.Usage = "robot-side telemetry producer"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "remoteaddr,r",
			Value: "127.0.0.1:9630",
			Usage: "ground station stream transport address",
		},
		cli.StringFlag{
			Name:  "source",
			Value: "robot-1",
			Usage: "source_node identifier stamped on every envelope",
		},
		cli.StringFlag{
			Name:  "feed",
			Usage: "newline-delimited JSON envelope feed file; empty reads the feed from stdin",
		},
		cli.IntFlag{
			Name:  "mtu",
			Value: 1400,
			Usage: "packetizer payload budget",
		},
		cli.IntFlag{
			Name:  "header-reserve",
			Value: packet.DefaultHeaderReserve,
			Usage: "non-payload bytes budgeted per fragment",
		},
		cli.StringFlag{
			Name:  "compression",
			Value: "fast",
			Usage: "fast (snappy) or balanced (zstd)",
		},
		cli.IntFlag{
			Name:  "compression-level",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "fec",
			Value: "off",
			Usage: "off, fixed, or adaptive",
		},
		cli.IntFlag{
			Name:  "fec-k",
			Value: 4,
			Usage: "FEC data shards per block (fixed and adaptive)",
		},
		cli.IntFlag{
			Name:  "fec-m",
			Value: 2,
			Usage: "FEC parity shards per block (fixed mode)",
		},
		cli.IntFlag{
			Name:  "fec-m-min",
			Value: 1,
		},
		cli.IntFlag{
			Name:  "fec-m-max",
			Value: 4,
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
		cli.Float64Flag{
			Name:  "tx-pacer-interval",
			Usage: "seconds between emissions; 0 disables pacing",
		},
		cli.StringFlag{
			Name:  "statslog",
			Usage: "collect stats to file, aware of time format, like: ./stats-20060102.csv",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 10,
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "config from json file, which will override the command from shell",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		cfg := config.Default()
		cfg.TransportHost = c.String("remoteaddr")
		cfg.SourceNode = c.String("source")
		cfg.MTU = c.Int("mtu")
		cfg.HeaderReserve = c.Int("header-reserve")
		cfg.Compression = c.String("compression")
		cfg.CompressionLevel = c.Int("compression-level")
		cfg.Fec = c.String("fec")
		cfg.FecK = c.Int("fec-k")
		cfg.FecM = c.Int("fec-m")
		cfg.FecMMin = c.Int("fec-m-min")
		cfg.FecMMax = c.Int("fec-m-max")
		cfg.Crypto = c.String("crypto")
		cfg.SigningSeedHex = c.String("signing-seed-hex")
		cfg.EncryptionKeyHex = c.String("encryption-key-hex")
		cfg.TxPacerIntervalSec = c.Float64("tx-pacer-interval")
		cfg.StatsLog = c.String("statslog")
		cfg.StatsPeriodSec = c.Int("statsperiod")
		cfg.Pprof = c.Bool("pprof")
		cfg.Log = c.String("log")

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

		if cfg.MTU < 64 {
			color.Red("robotsend: mtu %d below the 64-byte minimum, clamping", cfg.MTU)
			cfg.MTU = 64
		}
		if cfg.MTU <= cfg.HeaderReserve {
			color.Red("robotsend: mtu %d leaves no payload budget against header-reserve %d, clamping header-reserve", cfg.MTU, cfg.HeaderReserve)
			cfg.HeaderReserve = cfg.MTU - 1
		}

		compressor, err := compress.New(compressionKind(cfg.Compression), cfg.CompressionLevel)
		checkError(err)

		var cryptoBox *crypto.CryptoBox
		if cfg.Crypto == "symmetric" {
			cryptoBox, err = buildSymmetricCryptoBox(cfg)
			checkError(err)
		} else if cfg.Crypto != "none" && cfg.Crypto != "" {
			color.Red("robotsend: unsupported crypto mode %q, proceeding without encryption", cfg.Crypto)
		}

		packetizer, err := packet.NewPacketizer(cfg.MTU, cfg.HeaderReserve)
		checkError(err)

		fecCodec, fecAdaptive, err := buildFec(cfg)
		checkError(err)

		shaper := qos.NewShaper([envelope.NumPriorities]qos.ClassConfig{
			{MaxRatePPS: cfg.QoS.P0.MaxRatePPS, Burst: cfg.QoS.P0.Burst, MaxQueueLen: cfg.QoS.P0.QueueLen},
			{MaxRatePPS: cfg.QoS.P1.MaxRatePPS, Burst: cfg.QoS.P1.Burst, MaxQueueLen: cfg.QoS.P1.QueueLen},
			{MaxRatePPS: cfg.QoS.P2.MaxRatePPS, Burst: cfg.QoS.P2.Burst, MaxQueueLen: cfg.QoS.P2.QueueLen},
			{MaxRatePPS: cfg.QoS.P3.MaxRatePPS, Burst: cfg.QoS.P3.Burst, MaxQueueLen: cfg.QoS.P3.QueueLen},
		})
		pacer := ccem.NewTxPacer(time.Duration(cfg.TxPacerIntervalSec * float64(time.Second)))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		t, err := transport.DialReconnecting(ctx, cfg.TransportHost, 30*time.Second)
		checkError(err)
		defer t.Close()
		log.Println("robotsend: connected to", cfg.TransportHost)

		var counters stats.Counters
		done := make(chan struct{})
		defer close(done)
		go stats.CSVLogger(done, &counters, cfg.StatsLog, time.Duration(cfg.StatsPeriodSec)*time.Second)

		producer := pipeline.NewProducer(cfg.Compression, compressor, packetizer, shaper, pacer, t, &counters)
		producer.CryptoBox = cryptoBox
		producer.Fec = fecCodec
		producer.FecAdaptive = fecAdaptive

		pumpErr := make(chan error, 1)
		go func() { pumpErr <- producer.Pump(ctx) }()

		feed := openFeed(c.String("feed"))
		defer feed.Close()

		if err := runFeed(producer, feed, cfg.SourceNode); err != nil && err != io.EOF {
			return errors.Wrap(err, "robotsend: feed")
		}
		cancel()
		return <-pumpErr
	}

	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// feedEnvelope is the newline-delimited JSON shape robotsend accepts
// on its feed: a topic, priority, and raw payload bytes (base64 via
// encoding/json's []byte handling).
type feedEnvelope struct {
	Topic    string            `json:"topic"`
	Priority envelope.Priority `json:"priority"`
	Payload  []byte            `json:"payload"`
}

func runFeed(producer *pipeline.Producer, r io.Reader, sourceNode string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var seq uint32
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fe feedEnvelope
		if err := json.Unmarshal(line, &fe); err != nil {
			log.Println("robotsend: skipping malformed feed line:", err)
			continue
		}
		seq++
		env := envelope.New(fe.Topic, fe.Payload, fe.Priority, sourceNode, seq)
		if _, err := producer.Submit(env); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func openFeed(path string) io.ReadCloser {
	if path == "" {
		return io.NopCloser(os.Stdin)
	}
	f, err := os.Open(path)
	checkError(err)
	return f
}

func buildFec(cfg config.Config) (*fec.Codec, *fec.Adaptive, error) {
	switch cfg.Fec {
	case "fixed":
		c, err := fec.New(cfg.FecK, cfg.FecM)
		return c, nil, err
	case "adaptive":
		a, err := fec.NewAdaptive(cfg.FecK, cfg.FecMMin, cfg.FecMMax)
		return nil, a, err
	default:
		return nil, nil, nil
	}
}

func compressionKind(name string) compress.Kind {
	if name == "balanced" {
		return compress.Balanced
	}
	return compress.Fast
}

func buildSymmetricCryptoBox(cfg config.Config) (*crypto.CryptoBox, error) {
	seed, err := hex.DecodeString(cfg.SigningSeedHex)
	if err != nil {
		return nil, errors.Wrap(err, "robotsend: signing seed")
	}
	key, err := hex.DecodeString(cfg.EncryptionKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "robotsend: encryption key")
	}
	return crypto.NewCryptoBox(seed, key)
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
