package stats

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

var csvHeader = []string{
	"Unix",
	"EnvelopesSent", "EnvelopesReceived",
	"BytesSent", "BytesReceived",
	"CompressionErrors",
	"FecRecovered", "FecUnrecoverable",
	"CryptoAuthFailed", "CryptoDecryptFailed",
	"FragmentOverlaps", "InconsistentTotals", "ReassemblyTimeouts",
	"QoSDroppedP0", "QoSDroppedP1", "QoSDroppedP2", "QoSDroppedP3",
	"DeJitterGaps",
	"TransportDisconnects", "FrameTooLarge", "BadFrames",
}

func (s Snapshot) toRow() []string {
	return []string{
		fmt.Sprint(time.Now().Unix()),
		fmt.Sprint(s.EnvelopesSent), fmt.Sprint(s.EnvelopesReceived),
		fmt.Sprint(s.BytesSent), fmt.Sprint(s.BytesReceived),
		fmt.Sprint(s.CompressionErrors),
		fmt.Sprint(s.FecRecovered), fmt.Sprint(s.FecUnrecoverable),
		fmt.Sprint(s.CryptoAuthFailed), fmt.Sprint(s.CryptoDecryptFailed),
		fmt.Sprint(s.FragmentOverlaps), fmt.Sprint(s.InconsistentTotals), fmt.Sprint(s.ReassemblyTimeouts),
		fmt.Sprint(s.QoSDropped[0]), fmt.Sprint(s.QoSDropped[1]), fmt.Sprint(s.QoSDropped[2]), fmt.Sprint(s.QoSDropped[3]),
		fmt.Sprint(s.DeJitterGaps),
		fmt.Sprint(s.TransportDisconnects), fmt.Sprint(s.FrameTooLarge), fmt.Sprint(s.BadFrames),
	}
}

// CSVLogger periodically appends a Counters snapshot to a CSV file,
// one row per interval. path is passed through time.Format so a caller
// can roll files by timestamp (e.g. "./stats-20060102.csv").
func CSVLogger(done <-chan struct{}, counters *Counters, path string, interval time.Duration) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			logdir, logfile := filepath.Split(path)
			f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Println(err)
				return
			}
			w := csv.NewWriter(f)
			if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
				if err := w.Write(csvHeader); err != nil {
					log.Println(err)
				}
			}
			if err := w.Write(counters.Snapshot().toRow()); err != nil {
				log.Println(err)
			}
			w.Flush()
			f.Close()
		}
	}
}
