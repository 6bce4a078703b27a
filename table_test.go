package harvest_test

import (
	"strings"
	"testing"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/test"
)

func table(cols string, rows ...string) *harvest.Table {
	t := harvest.NewTable(strings.Split(cols, ",")...)
	for _, r := range rows {
		if err := t.Append(strings.Split(r, ",")...); err != nil {
			panic(err)
		}
	}
	return t
}

func TestTableConcatAndDropDuplicates(t *testing.T) {
	meta := table("pkey,sol", "a,1", "b,1")
	more := table("sol,pkey", "1,b", "2,c", "2,c")
	test.ErrNil(t, meta.Concat(more), "concat")
	test.MustBe(t, [][]string{{"a", "1"}, {"b", "1"}, {"b", "1"}, {"c", "2"}, {"c", "2"}}, meta.Rows)

	n := meta.DropDuplicates()
	test.MustBe(t, 2, n, "dropped")
	test.MustBe(t, [][]string{{"a", "1"}, {"b", "1"}, {"c", "2"}}, meta.Rows)

	if err := meta.Concat(table("pkey,target", "d,x")); err == nil {
		t.Fatal("expected error concatenating mismatched columns")
	}
}

func TestTableUnion(t *testing.T) {
	moc := table("pkey,SiO2", "a,50")
	moc.Union(table("TiO2,pkey", "1.1,b"))
	test.MustBe(t, []string{"pkey", "SiO2", "TiO2"}, moc.Columns)
	test.MustBe(t, [][]string{{"a", "50", ""}, {"b", "", "1.1"}}, moc.Rows)
}

func TestTableMerge(t *testing.T) {
	meta := table("pkey,sol,target", "a,1,rock", "b,1,soil", "c,2,rock")
	comps := table("pkey,SiO2,target", "c,45.1,rock", "a,50.2,rock", "b,40,other", "z,1,rock")
	merged, err := meta.Merge(comps)
	test.ErrNil(t, err, "merging")
	test.MustBe(t, []string{"pkey", "sol", "target", "SiO2"}, merged.Columns)
	test.MustBe(t, [][]string{{"a", "1", "rock", "50.2"}, {"c", "2", "rock", "45.1"}}, merged.Rows)

	if _, err := meta.Merge(table("x,y", "1,2")); err == nil {
		t.Fatal("expected error merging with no common columns")
	}
}

func TestTableHStack(t *testing.T) {
	wave := table("Wavelength", "240.1", "240.2", "240.3")
	stats := table("Mean,Median", "1,2", "3,4")
	joined, err := wave.HStack(stats)
	test.ErrNil(t, err, "stacking")
	test.MustBe(t, []string{"Wavelength", "Mean", "Median"}, joined.Columns)
	test.MustBe(t, [][]string{{"240.1", "1", "2"}, {"240.2", "3", "4"}, {"240.3", "", ""}}, joined.Rows)

	if _, err := wave.HStack(table("Wavelength", "1")); err == nil {
		t.Fatal("expected error for overlapping column")
	}
}

func TestTableColumnOps(t *testing.T) {
	moc := table("File,SiO2,SiO2 +/-,Total", "CL5_A.CSV,45,2,99", "CL5_B.CSV,50,3,98")
	moc = moc.DropColumns(func(c string) bool { return strings.Contains(c, "+/-") })
	test.MustBe(t, []string{"File", "SiO2", "Total"}, moc.Columns)

	test.ErrNil(t, moc.InsertColumn(0, "pkey", []string{"cl5_a", "cl5_b"}), "inserting")
	test.ErrNil(t, moc.AddColumn("Source File", "moc_v1"), "adding")
	test.ErrNil(t, moc.Rename("Total", "total"), "renaming")
	test.MustBe(t, []string{"pkey", "File", "SiO2", "total", "Source File"}, moc.Columns)
	test.MustBe(t, []string{"cl5_a", "CL5_A.CSV", "45", "99", "moc_v1"}, moc.Rows[0])

	max, ok, err := table("sol", "3", "12.0", "7").MaxInt("sol")
	test.ErrNil(t, err, "max")
	if !ok || max != 12 {
		t.Fatalf("unexpected max %d %v", max, ok)
	}
	max, ok, err = table("sol", "", "nan", "4", "NaN", "2.0").MaxInt("sol")
	test.ErrNil(t, err, "max with missing cells")
	if !ok || max != 4 {
		t.Fatalf("unexpected max with missing cells %d %v", max, ok)
	}
	_, ok, err = table("sol", "", "nan").MaxInt("sol")
	test.ErrNil(t, err, "max of missing cells")
	if ok {
		t.Fatal("max of missing cells should not be ok")
	}
	_, ok, err = table("sol").MaxInt("sol")
	test.ErrNil(t, err, "max of empty")
	if ok {
		t.Fatal("max of empty table should not be ok")
	}

	rocks := table("pkey,target", "a,rock", "b,soil").Filter(func(r []string) bool { return r[1] == "rock" })
	test.MustBe(t, [][]string{{"a", "rock"}}, rocks.Rows)
}
