// Package harvest pulls laser-induced breakdown spectroscopy (LIBS) products
// from the Planetary Data System and keeps a set of CSV tables up to date with
// them. It contains the types shared by every stage of a harvest, and the
// sub-packages hold the concrete implementations which rely on other
// software.
//
// A harvest moves through four stages.
//
// 1. Discovery
//
//    Remote archives are organized in numbered partitions, one per mission
//    day ("sol"). Discovery lists the archive's base directory, pulls the
//    partition names out of it, and compares them against the checkpoint of
//    what has already been ingested. Only partitions strictly after the
//    checkpoint are returned, in ascending order.
//
// 2. Ingestion
//
//    Each new partition is listed in turn and its files are filtered by name
//    and product type. The Instrument knows which files it wants and how to
//    turn one of them into an Observation: an id, a metadata row, and a mean
//    spectrum on a wavelength axis. Fetching is done through a Remote, and
//    structured scientific files are handed to a Parser, so both can be
//    swapped out in tests.
//
// 3. Merge
//
//    Observations of a partition are staged and committed to the accumulating
//    metadata and spectra tables only once the whole partition has been
//    read. A transient failure stops the attempt, persists what was
//    committed, and restarts discovery from the new checkpoint after a
//    backoff. Permanent failures of a single file are logged and the file is
//    skipped.
//
// 4. Finishing
//
//    After the spectra are in, composition estimates published alongside the
//    products are fetched, joined to the metadata, and (for SuperCam) the
//    whole thing is reshaped into the layout expected by PyHAT.
//
// Sinks are told about every committed partition (Kafka, Pilosa), and a
// Publisher can copy the written artifacts elsewhere (S3) at the end of a
// run.
package harvest
