// Package run wires a harvest together from configuration: the remote
// archive, the optional cache, ledger, sinks, and publisher, and the
// instrument.
package run

import (
	"context"
	nethttp "net/http"
	"os"
	"time"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/aws/s3"
	"github.com/pilosa/pdsharvest/boltdb"
	"github.com/pilosa/pdsharvest/chemcam"
	"github.com/pilosa/pdsharvest/fits"
	"github.com/pilosa/pdsharvest/http"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pilosa/pdsharvest/kafka"
	"github.com/pilosa/pdsharvest/leveldb"
	"github.com/pilosa/pdsharvest/pilosa"
	"github.com/pilosa/pdsharvest/supercam"
	"github.com/pilosa/pdsharvest/termstat"
	"github.com/pkg/errors"
)

// Instruments which can be harvested.
const (
	ChemCam  = "chemcam"
	SuperCam = "supercam"
)

// Main holds all config for a harvest.
type Main struct {
	Folder       string        `help:"Folder the tables are written to."`
	Stamp        string        `help:"Stamp in output file names. Empty means today as ddmmyy."`
	BaseURL      string        `help:"Archive directory listing the sol partitions. Empty means the instrument's PDS volume."`
	MaxRetries   int           `help:"Times discovery is restarted after a transient failure."`
	Backoff      time.Duration `help:"Wait before the first restart. Doubles each time."`
	FetchRetries int           `help:"Attempts per HTTP request before the failure counts as transient."`
	Timeout      time.Duration `help:"HTTP request timeout."`
	MaxDownload  int           `help:"Largest product to download, in bytes."`
	FlushEvery   int           `help:"Save the tables after this many sols, as well as at the end of each attempt. 0 disables."`
	CacheDir     string        `help:"Directory of a leveldb cache of downloaded products. Empty disables caching."`
	Ledger       string        `help:"Path of a boltdb ledger of completed sols. Empty disables it."`
	S3Bucket     string        `help:"S3 bucket the written tables are uploaded to. Empty disables uploading."`
	S3Region     string        `help:"AWS region to use."`
	S3Prefix     string        `help:"Key prefix for uploads. Empty means <instrument>/<stamp>."`
	KafkaHosts   []string      `help:"Comma separated list of Kafka brokers to announce committed sols to."`
	KafkaTopic   string        `help:"Kafka topic for announcements."`
	PilosaHosts  []string      `help:"Comma separated list of Pilosa hosts to index observations in."`
	PilosaIndex  string        `help:"Pilosa index."`
	TLS          harvest.TLSConfig
	Artifacts    bool          `help:"SuperCam only: keep each FITS file, laser log, and per-product table."`
	PyHAT        bool          `help:"SuperCam only: write the PyHAT table."`
	Progress     bool          `help:"Show a progress line on stderr."`
	LogPath      string        `help:"Log file to write to. Empty means stderr."`
	Verbose      bool          `help:"Enable verbose logging."`

	Instrument string         `flag:"-"`
	Remote     harvest.Remote `flag:"-"`
}

// NewMain gets a new Main with the default configuration.
func NewMain(instrument string) *Main {
	return &Main{
		Instrument:   instrument,
		MaxRetries:   3,
		Backoff:      2 * time.Second,
		FetchRetries: 3,
		Timeout:      5 * time.Minute,
		MaxDownload:  1 << 30,
		S3Region:     "us-east-1",
		KafkaTopic:   "libs",
		PilosaIndex:  "libs",
		PyHAT:        true,
	}
}

// Run runs the harvest.
func (m *Main) Run() error {
	_, err := m.RunContext(context.Background())
	return err
}

type instrument interface {
	ingest.Instrument
	Store() *ingest.Store
}

// RunContext runs the harvest and returns its report.
func (m *Main) RunContext(ctx context.Context) (rep *ingest.Report, err error) {
	if err := m.validate(); err != nil {
		return nil, errors.Wrap(err, "validating configuration")
	}
	if m.Stamp == "" {
		m.Stamp = time.Now().Format("020106")
	}

	log, err := harvest.NewZapLogger(m.LogPath, m.Verbose)
	if err != nil {
		return nil, errors.Wrap(err, "setting up logging")
	}
	defer func() {
		if cerr := log.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var stats harvest.Statter = harvest.NopStatter{}
	if m.Progress {
		tc := termstat.NewCollector(os.Stderr, time.Second)
		defer tc.Close()
		stats = tc
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				log.Warnf("closing: %v", cerr)
			}
		}
	}()

	inst, err := m.instrument(log)
	if err != nil {
		return nil, err
	}

	remote := m.Remote
	if remote == nil {
		remote = http.NewRemote(
			http.WithClient(&nethttp.Client{Timeout: m.Timeout}),
			http.WithRetries(m.FetchRetries),
			http.WithMaxBytes(int64(m.MaxDownload)),
			http.WithLogger(log),
			http.WithStatter(stats))
	}
	if m.CacheDir != "" {
		cache, err := leveldb.NewCache(m.CacheDir, remote,
			leveldb.WithStatter(stats),
			leveldb.WithFilter(func(u string) bool { return u != supercam.CompsURL }))
		if err != nil {
			return nil, errors.Wrap(err, "opening cache")
		}
		closers = append(closers, cache.Close)
		remote = cache
	}

	opts := []ingest.HarvesterOption{
		ingest.OptHarvesterRetries(m.MaxRetries, m.Backoff),
		ingest.OptHarvesterFlushEvery(m.FlushEvery),
		ingest.OptHarvesterStats(stats),
		ingest.OptHarvesterLogger(log),
	}
	if m.Ledger != "" {
		l, err := boltdb.NewLedger(m.Ledger)
		if err != nil {
			return nil, errors.Wrap(err, "opening ledger")
		}
		closers = append(closers, l.Close)
		opts = append(opts, ingest.OptHarvesterLedger(l))
	}
	tlsConfig, err := harvest.GetTLSConfig(&m.TLS, log)
	if err != nil {
		return nil, errors.Wrap(err, "getting TLS config")
	}
	if len(m.KafkaHosts) > 0 {
		s, err := kafka.NewSink(m.KafkaHosts, m.KafkaTopic, tlsConfig)
		if err != nil {
			return nil, errors.Wrap(err, "connecting to kafka")
		}
		closers = append(closers, s.Close)
		opts = append(opts, ingest.OptHarvesterSinks(s))
	}
	if len(m.PilosaHosts) > 0 {
		s, err := pilosa.NewSink(m.PilosaHosts, m.PilosaIndex, tlsConfig)
		if err != nil {
			return nil, errors.Wrap(err, "setting up Pilosa")
		}
		closers = append(closers, s.Close)
		opts = append(opts, ingest.OptHarvesterSinks(s))
	}
	if m.S3Bucket != "" {
		prefix := m.S3Prefix
		if prefix == "" {
			prefix = m.Instrument + "/" + m.Stamp
		}
		p, err := s3.NewPublisher(
			s3.OptPubBucket(m.S3Bucket),
			s3.OptPubRegion(m.S3Region),
			s3.OptPubPrefix(prefix),
			s3.OptPubLogger(log))
		if err != nil {
			return nil, errors.Wrap(err, "setting up S3")
		}
		opts = append(opts, ingest.OptHarvesterPublisher(p))
	}

	start := time.Now()
	h := ingest.NewHarvester(remote, inst, inst.Store(), m.BaseURL, opts...)
	rep, err = h.Run(ctx)
	if rep != nil {
		stats.Timing("elapsed", time.Since(start), 1)
		log.Printf("%s: %d observations from %d sols, %d skipped, %d retries in %v",
			m.Instrument, rep.Observations, len(rep.Sols), len(rep.Skipped), rep.Retries, time.Since(start))
	}
	return rep, err
}

func (m *Main) validate() error {
	if m.Folder == "" {
		return errors.New("no folder")
	}
	if m.MaxRetries < 0 {
		return errors.Errorf("negative retries: %d", m.MaxRetries)
	}
	switch m.Instrument {
	case ChemCam, SuperCam:
	default:
		return errors.Errorf("unknown instrument '%s'", m.Instrument)
	}
	return nil
}

func (m *Main) instrument(log harvest.Logger) (instrument, error) {
	switch m.Instrument {
	case ChemCam:
		c := chemcam.New(m.Folder, m.Stamp, log)
		if m.BaseURL == "" {
			m.BaseURL = c.BaseURL
		}
		c.BaseURL = m.BaseURL
		return c, nil
	case SuperCam:
		if m.BaseURL == "" {
			m.BaseURL = supercam.BaseURL
		}
		return supercam.New(m.Folder, m.Stamp, fits.NewParser(),
			supercam.OptBaseURL(m.BaseURL),
			supercam.OptArtifacts(m.Artifacts),
			supercam.OptPyHAT(m.PyHAT),
			supercam.OptLogger(log)), nil
	}
	return nil, errors.Errorf("unknown instrument '%s'", m.Instrument)
}
