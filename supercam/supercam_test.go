package supercam_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/csv"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pilosa/pdsharvest/mock"
	"github.com/pilosa/pdsharvest/supercam"
	"github.com/pilosa/pdsharvest/test"
)

// rdr builds a 65 character RDR id followed by ".fits".
func rdr(sol int, typ, seq, target string) string {
	return fmt.Sprintf("scam_%04d_0674068417_191_%s_%s_%s%s03P01.fits",
		sol, typ, seq, target, strings.Repeat("_", 21-len(target)))
}

func table(cols string, rows ...string) *harvest.Table {
	t := harvest.NewTable(strings.Split(cols, ",")...)
	for _, r := range rows {
		if err := t.Append(strings.Split(r, ",")...); err != nil {
			panic(err)
		}
	}
	return t
}

func hdus(means ...string) []*harvest.Table {
	ret := make([]*harvest.Table, 10)
	for i := range ret {
		ret[i] = &harvest.Table{}
	}
	ret[5] = table("Shot,Energy", "1,14.2", "2,14.1")
	ret[6] = table("Shot1,Shot2", "1,2", "3,4", "5,6")
	ret[7] = table("Mean,Median", means[0]+",0", means[1]+",0", means[2]+",0")
	ret[8] = table("Wavelength", "243.8", "243.9", "244")
	ret[9] = table("Saturated", "F", "F", "T")
	return ret
}

const comps = `header,of,no,use
a,b,c,d
a,b,c,d
a,b,c,d
a,b,c,d
a,b,c,d
a,b,c,d
a,b,c,d
cdr_fname,SiO2,FeOT,target_name
%s,45.2,18.1,x
%s,50.1,10.2,y
`

type fixture struct {
	remote *mock.Remote
	parser *mock.Parser
	names  []string
}

func newFixture() *fixture {
	f := &fixture{remote: mock.NewRemote(), parser: &mock.Parser{Results: map[string][]*harvest.Table{}}}
	put := func(sol harvest.Sol, name, content string, tables []*harvest.Table) {
		f.remote.Put(supercam.BaseURL+sol.Format("sol_")+"/"+name, []byte(content))
		if tables != nil {
			f.parser.Results[content] = tables
		}
	}
	a := rdr(77, "cl1", "scam02077", "ROCKNEST")
	b := rdr(77, "cl5", "scam02078", "SANTA_CRUZ")
	c := rdr(79, "cl2", "scam02079", "ORTEGA")
	put(77, a, "fits a", hdus("1", "2", "3"))
	put(77, b, "fits b", hdus("4", "5", "6"))
	put(77, rdr(77, "cp1", "scam02077", "ROCKNEST"), "passive", hdus("0", "0", "0"))
	put(77, "scam_0077_short.fits", "short", nil)
	put(79, c, "fits c", hdus("7", "8", "nan"))
	f.names = []string{a, b, c}
	f.remote.Put(supercam.CompsURL, []byte(fmt.Sprintf(comps, f.id(0)[:63], f.id(2)[:63])))
	return f
}

func (f *fixture) id(i int) string { return ingest.ObservationID(f.names[i]) }

func TestParseName(t *testing.T) {
	meta, err := supercam.ParseName(rdr(77, "cl1", "scam02077", "SANTA_CRUZ"))
	test.ErrNil(t, err, "parsing")
	test.MustBe(t, []string{
		"scam_0077_0674068417_191_cl1_scam02077_SANTA_CRUZ___________03P01",
		"77", "0674068417_191", "scam02077", "SANTA CRUZ", "03", "P", "01",
	}, meta)

	if _, err := supercam.ParseName("scam_0077_short.fits"); err == nil {
		t.Fatal("expected error for short name")
	}
}

func TestCandidates(t *testing.T) {
	s := supercam.New("", "", &mock.Parser{})
	libs := rdr(77, "cl1", "scam02077", "ROCKNEST")
	got := s.Candidates([]string{
		libs,
		rdr(77, "cp1", "scam02077", "ROCKNEST"),
		"scam_0077_short.fits",
		strings.TrimSuffix(libs, ".fits") + ".xml",
	})
	test.MustBe(t, []string{libs}, got)

	sol, ok := s.ParsePartition("sol_00077")
	test.MustBe(t, true, ok)
	test.MustBe(t, "sol_00077/", s.PartitionPath(sol))
	if _, ok := s.ParsePartition("sol00077"); ok {
		t.Fatal("ChemCam partition name accepted")
	}
}

func TestHarvest(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	s := supercam.New(dir, "210423", f.parser, supercam.OptArtifacts(true))
	rep, err := ingest.NewHarvester(f.remote, s, s.Store(), s.BaseURL).Run(context.Background())
	test.ErrNil(t, err, "running")
	test.MustBe(t, harvest.Sols{77, 79}, rep.Sols)
	test.MustBe(t, 3, rep.Observations)

	meta, err := csv.ReadFile(filepath.Join(dir, "LIBS_RDR_metadata_210423.csv"))
	test.ErrNil(t, err, "reading metadata")
	test.MustBe(t, supercam.Columns, meta.Columns)
	test.MustBe(t, 3, meta.Len(), "one row per LIBS product")
	test.MustBe(t, []string{f.id(1), "77", "0674068417_191", "scam02078", "SANTA CRUZ", "03", "P", "01"}, meta.Rows[1])

	spec, err := csv.ReadFile(filepath.Join(dir, "LIBS_RDR_mean_spectra_210423.csv"))
	test.ErrNil(t, err, "reading spectra")
	test.MustBe(t, []string{"wave", f.id(0), f.id(1), f.id(2)}, spec.Columns)
	test.MustBe(t, [][]string{
		{"243.8", "1", "4", "7"},
		{"243.9", "2", "5", "8"},
		{"244", "3", "6", ""},
	}, spec.Rows)

	joined, err := csv.ReadFile(filepath.Join(dir, "LIBS_RDR_metadata_w_pred_comps_210423.csv"))
	test.ErrNil(t, err, "reading joined")
	test.MustBe(t, append(append([]string{}, supercam.Columns...), "SiO2", "FeOT", "target_name"), joined.Columns)
	test.MustBe(t, 2, joined.Len())

	raw, err := os.ReadFile(filepath.Join(dir, "supercam_libs_moc_210423.csv"))
	test.ErrNil(t, err, "reading raw compositions")
	test.MustBe(t, true, strings.HasPrefix(string(raw), "header,of,no,use\n"))

	pyhat, err := os.ReadFile(filepath.Join(dir, "LIBS_RDR_data_PyHAT_210423.csv"))
	test.ErrNil(t, err, "reading PyHAT")
	lines := strings.Split(strings.TrimSpace(string(pyhat)), "\n")
	test.MustBe(t, 4, len(lines))
	test.MustBe(t, "meta,meta,meta,meta,meta,meta,meta,meta,comp,comp,comp,wvl,wvl,wvl", lines[0])
	test.MustBe(t, "pkey,sol,sclock,seq_n,target,location_n,producer,version,SiO2,FeOT,target_name,243.8,243.9,244", lines[1])
	test.MustBe(t, true, strings.HasSuffix(lines[3], ",50.1,10.2,y,7,8,"))

	laser, err := csv.ReadFile(filepath.Join(dir, supercam.LaserFolder, f.id(0)+".csv"))
	test.ErrNil(t, err, "reading laser log")
	test.MustBe(t, []string{"Shot", "Energy"}, laser.Columns)
	perProduct, err := csv.ReadFile(filepath.Join(dir, supercam.SpectraFolder, f.id(0)+".csv"))
	test.ErrNil(t, err, "reading product table")
	test.MustBe(t, []string{"Wavelength", "Mean", "Median", "Shot1", "Shot2", "Saturated"}, perProduct.Columns)
	fits, err := os.ReadFile(filepath.Join(dir, supercam.FitsFolder, f.names[0]))
	test.ErrNil(t, err, "reading fits copy")
	test.MustBe(t, "fits a", string(fits))
}

func TestHarvestWithoutPyHAT(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	s := supercam.New(dir, "x", f.parser, supercam.OptPyHAT(false))
	rep, err := ingest.NewHarvester(f.remote, s, s.Store(), s.BaseURL).Run(context.Background())
	test.ErrNil(t, err, "running")
	if len(rep.Written) == 0 {
		t.Fatal("nothing written")
	}
	for _, p := range rep.Written {
		if strings.Contains(filepath.Base(p), "PyHAT") {
			t.Fatalf("PyHAT table written: %s", p)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "LIBS_RDR_data_PyHAT_x.csv")); !os.IsNotExist(err) {
		t.Fatalf("PyHAT file exists: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, supercam.FitsFolder)); !os.IsNotExist(err) {
		t.Fatalf("artifacts written without being asked for: %v", err)
	}
}

func TestPyHATDropsUnlabelledWavelengths(t *testing.T) {
	sp := harvest.NewSpectra()
	test.ErrNil(t, sp.Add("a01", []float64{1, 2, math.NaN()}, []float64{5, 6, 7}), "adding")
	joined := table("pkey,sol,SiO2", "a01,1,40")
	rows, err := supercam.PyHAT(joined, []string{"pkey", "sol"}, sp)
	test.ErrNil(t, err, "building")
	test.MustBe(t, [][]string{
		{"meta", "meta", "comp", "wvl", "wvl"},
		{"pkey", "sol", "SiO2", "1", "2"},
		{"a01", "1", "40", "5", "6"},
	}, rows)
}
