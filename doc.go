// Package cpk reads and extracts files from CPK archives, the container
// format used to bundle game assets.
//
// A CPK archive embeds one or more @UTF metadata tables (parsed by the utf
// package), optionally scrambled with a light XOR keystream, plus file
// payloads that may be compressed with the CRILAYLA scheme (decompressed by
// the crilayla package). The archive header table points at up to four
// sub-tables: TOC (file listing), ETOC (extended metadata), ITOC (id-indexed
// size tables) and GTOC (group information, recognized but not parsed).
//
// # Basic Usage
//
// Reading an archive and listing its files:
//
//	archive := cpk.New()
//	if err := archive.Read("data.cpk"); err != nil {
//	    log.Fatal(err)
//	}
//	for _, entry := range archive.FileTable {
//	    if entry.FileType == "FILE" {
//	        fmt.Println(entry.FullPath())
//	    }
//	}
//
// Extracting files:
//
//	err := archive.ExtractFile("data.cpk", "textures/face.bin")
//	err = archive.ExtractAll("data.cpk", cpk.WithOutputDir("out"))
//
// Read must complete before extraction. The archive is read-only afterwards;
// extraction re-opens the input, so independent extractions of the same
// archive may run concurrently.
package cpk
