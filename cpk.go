package cpk

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/arloliu/cpk/endian"
	"github.com/arloliu/cpk/errs"
	"github.com/arloliu/cpk/utf"
)

const (
	// notPresent marks an absent sub-table offset.
	notPresent = 0xFFFFFFFFFFFFFFFF

	// defaultAlign is the payload alignment assumed when the header carries no
	// Align column.
	defaultAlign = 0x800

	// maxBlobSize caps any single declared table blob size. Policy bound
	// against adversarial inputs, not a format limit.
	maxBlobSize = 100_000_000
)

// Archive is a parsed CPK container: the unified file table aggregated from
// the header and its sub-tables, plus the raw table packets and section
// offsets.
//
// An Archive is constructed empty with New and populated by a single Read
// call; it is read-only afterwards, so independent extractions may run
// concurrently (each opens its own file handle).
type Archive struct {
	// FileTable lists pseudo-entries and files in the order the sections were
	// visited.
	FileTable []*FileEntry

	// CPKData maps the CPK header table's column names to row 0's cell values.
	CPKData map[string]utf.Value

	// Raw table packets, kept for round-trip reasoning. Sub-table packets are
	// nil when the section is absent. The GTOC packet is never read, so
	// gtocPacket stays nil.
	cpkPacket  []byte
	tocPacket  []byte
	etocPacket []byte
	itocPacket []byte
	gtocPacket []byte

	tocOffset     uint64
	etocOffset    uint64
	itocOffset    uint64
	gtocOffset    uint64
	contentOffset uint64
}

// New creates an empty archive. Call Read to populate it.
func New() *Archive {
	return &Archive{
		CPKData:       make(map[string]utf.Value),
		tocOffset:     notPresent,
		etocOffset:    notPresent,
		itocOffset:    notPresent,
		gtocOffset:    notPresent,
		contentOffset: 0,
	}
}

// Read parses the archive at path: the top-level header table and every
// present sub-table, assembling the unified file table.
func (a *Archive) Read(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	fileSize := info.Size()
	slog.Debug("reading CPK archive", "path", path, "size", fileSize)

	r := endian.NewReader(f, false)

	sig, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("read CPK signature: %w", err)
	}
	if string(sig) != "CPK " {
		return errs.ErrInvalidSignature
	}

	headerPos, err := r.Position()
	if err != nil {
		return err
	}

	blob, encrypted, err := readInnerUTF(r, fileSize)
	if err != nil {
		return err
	}
	a.cpkPacket = blob

	a.FileTable = append(a.FileTable, &FileEntry{
		FileName:   "CPK_HDR",
		FileOffset: uint64(headerPos + 16),
		FileSize:   uint64(len(blob)),
		Encrypted:  encrypted,
		FileType:   "CPK",
		TocName:    "CPK",
	})

	table, err := utf.Parse(blob)
	if err != nil {
		return err
	}

	for i, col := range table.Columns {
		if len(table.Rows) > 0 {
			a.CPKData[col.Name] = table.Rows[0][i].Value
		}
	}

	a.tocOffset = uint64Column(table, 0, "TocOffset", notPresent)
	a.etocOffset = uint64Column(table, 0, "EtocOffset", notPresent)
	a.itocOffset = uint64Column(table, 0, "ItocOffset", notPresent)
	a.gtocOffset = uint64Column(table, 0, "GtocOffset", notPresent)

	// An absent content offset reads as zero, unlike the sub-table offsets.
	a.contentOffset = 0
	if v, ok := table.GetColumnData(0, "ContentOffset"); ok && !v.IsNone() {
		if u, uok := v.AsUint64(); uok {
			a.contentOffset = u
		}
	}

	files := uint32(0)
	if v, ok := table.GetColumnDataOrDefault(0, "Files", utf.KindUint32).AsUint32(); ok {
		files = v
	}
	align := uint16(defaultAlign)
	if v, ok := table.GetColumnDataOrDefault(0, "Align", utf.KindUint16).AsUint16(); ok {
		align = v
	}

	slog.Debug("CPK header table",
		"toc", fmt.Sprintf("0x%X", a.tocOffset),
		"etoc", fmt.Sprintf("0x%X", a.etocOffset),
		"itoc", fmt.Sprintf("0x%X", a.itocOffset),
		"gtoc", fmt.Sprintf("0x%X", a.gtocOffset),
		"content", fmt.Sprintf("0x%X", a.contentOffset),
		"files", files,
		"align", align)

	if a.contentOffset != 0 {
		a.FileTable = append(a.FileTable, &FileEntry{
			FileName:   "CONTENT_OFFSET",
			FileOffset: a.contentOffset,
			FileType:   "CONTENT",
			TocName:    "CPK",
		})
	}

	if a.tocOffset != notPresent {
		a.FileTable = append(a.FileTable, &FileEntry{
			FileName:   "TOC_HDR",
			FileOffset: a.tocOffset,
			FileType:   "HDR",
			TocName:    "CPK",
		})
		if err := a.readTOC(r, fileSize); err != nil {
			return err
		}
	}

	if a.etocOffset != notPresent {
		a.FileTable = append(a.FileTable, &FileEntry{
			FileName:   "ETOC_HDR",
			FileOffset: a.etocOffset,
			FileType:   "HDR",
			TocName:    "CPK",
		})
		if err := a.readETOC(r, fileSize); err != nil {
			return err
		}
	}

	if a.itocOffset != notPresent {
		a.FileTable = append(a.FileTable, &FileEntry{
			FileName:   "ITOC_HDR",
			FileOffset: a.itocOffset,
			FileType:   "HDR",
			TocName:    "CPK",
		})
		if err := a.readITOC(r, uint64(align), fileSize); err != nil {
			return err
		}
	}

	if a.gtocOffset != notPresent {
		a.FileTable = append(a.FileTable, &FileEntry{
			FileName:   "GTOC_HDR",
			FileOffset: a.gtocOffset,
			FileType:   "HDR",
			TocName:    "CPK",
		})
		if err := a.readGTOC(r); err != nil {
			return err
		}
	}

	return nil
}

// readInnerUTF reads one table packet through the shared 16-byte framing: a
// discarded word and the packet size, both little-endian, then the packet
// itself, descrambled when needed.
func readInnerUTF(r *endian.Reader, fileSize int64) ([]byte, bool, error) {
	r.SetLittleEndian(true)

	if _, err := r.ReadUint32(); err != nil {
		return nil, false, fmt.Errorf("read UTF packet header: %w", err)
	}
	utfSize, err := r.ReadInt64()
	if err != nil {
		return nil, false, fmt.Errorf("read UTF packet size: %w", err)
	}

	pos, err := r.Position()
	if err != nil {
		return nil, false, err
	}

	if utfSize < 0 {
		return nil, false, fmt.Errorf("%w: negative UTF size %d", errs.ErrInvalidFormat, utfSize)
	}
	if utfSize > maxBlobSize {
		return nil, false, fmt.Errorf("%w: UTF size %d seems unreasonably large", errs.ErrInvalidFormat, utfSize)
	}
	if pos+utfSize > fileSize {
		return nil, false, fmt.Errorf("%w: UTF size %d exceeds remaining file size %d", errs.ErrInvalidFormat, utfSize, fileSize-pos)
	}

	packet, err := r.ReadBytes(int(utfSize))
	if err != nil {
		return nil, false, fmt.Errorf("read UTF packet: %w", err)
	}

	r.SetLittleEndian(false)

	encrypted := !utf.HasSignature(packet)
	if encrypted {
		packet = utf.Decrypt(packet)
	}
	if !utf.HasSignature(packet) {
		return nil, false, errs.ErrInvalidUTFSignature
	}

	return packet, encrypted, nil
}

// readTOC parses the TOC sub-table and appends one file entry per row.
func (a *Archive) readTOC(r *endian.Reader, fileSize int64) error {
	fToc := a.tocOffset
	if fToc > defaultAlign {
		fToc = defaultAlign
	}

	// Payload offsets in the TOC are relative to a base that historical
	// layouts derive from both the content offset and the TOC position.
	var addOffset uint64
	switch {
	case a.contentOffset == notPresent:
		addOffset = fToc
	case a.tocOffset == notPresent:
		addOffset = a.contentOffset
	case a.contentOffset < fToc:
		addOffset = a.contentOffset
	default:
		addOffset = fToc
	}

	if _, err := r.Seek(int64(a.tocOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to TOC: %w", err)
	}

	sig, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("read TOC signature: %w", err)
	}
	if string(sig) != "TOC " {
		return fmt.Errorf("%w: invalid TOC signature", errs.ErrInvalidFormat)
	}

	blob, encrypted, err := readInnerUTF(r, fileSize)
	if err != nil {
		return err
	}
	a.tocPacket = blob
	a.updateHeaderEntry("TOC_HDR", encrypted, uint64(len(blob)))

	table, err := utf.Parse(blob)
	if err != nil {
		return err
	}

	for row := range int(table.NumRows) {
		entry := &FileEntry{
			TocName:  "TOC",
			FileType: "FILE",
			Offset:   addOffset,
		}

		if v, ok := table.GetColumnData(row, "DirName"); ok {
			entry.DirName, _ = v.AsString()
		}
		if v, ok := table.GetColumnData(row, "FileName"); ok {
			entry.FileName, _ = v.AsString()
		}

		if v, ok := table.GetColumnData(row, "FileSize"); ok {
			entry.FileSize, _ = v.AsUint64()
			entry.FileSizePos, _ = table.GetColumnPosition(row, "FileSize")
		}
		if v, ok := table.GetColumnData(row, "ExtractSize"); ok {
			entry.ExtractSize, entry.HasExtractSize = v.AsUint64()
			entry.ExtractSizePos, _ = table.GetColumnPosition(row, "ExtractSize")
		}
		if v, ok := table.GetColumnData(row, "FileOffset"); ok {
			base, _ := v.AsUint64()
			entry.FileOffset = base + addOffset
			entry.FileOffsetPos, _ = table.GetColumnPosition(row, "FileOffset")
		}

		if v, ok := table.GetColumnData(row, "ID"); ok {
			entry.ID, entry.HasID = v.AsUint32()
		}
		if v, ok := table.GetColumnData(row, "UserString"); ok {
			entry.UserString, _ = v.AsString()
		}

		slog.Debug("TOC file entry",
			"name", entry.FullPath(),
			"size", entry.FileSize,
			"offset", fmt.Sprintf("0x%X", entry.FileOffset))

		a.FileTable = append(a.FileTable, entry)
	}

	return nil
}

// readETOC parses the ETOC sub-table and attaches LocalDir values to the file
// entries, matched by position. ETOC rows are assumed parallel to TOC rows.
func (a *Archive) readETOC(r *endian.Reader, fileSize int64) error {
	if _, err := r.Seek(int64(a.etocOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to ETOC: %w", err)
	}

	sig, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("read ETOC signature: %w", err)
	}
	if string(sig) != "ETOC" {
		return fmt.Errorf("%w: invalid ETOC signature", errs.ErrInvalidFormat)
	}

	blob, encrypted, err := readInnerUTF(r, fileSize)
	if err != nil {
		return err
	}
	a.etocPacket = blob
	a.updateHeaderEntry("ETOC_HDR", encrypted, uint64(len(blob)))

	table, err := utf.Parse(blob)
	if err != nil {
		return err
	}

	row := 0
	for _, entry := range a.FileTable {
		if entry.FileType != "FILE" {
			continue
		}
		if v, ok := table.GetColumnData(row, "LocalDir"); ok {
			entry.LocalDir, _ = v.AsString()
		}
		row++
	}

	return nil
}

// readITOC parses the ITOC sub-table: row 0 holds two nested tables (DataL
// with 16-bit sizes, DataH with 32-bit sizes), both keyed by a 16-bit ID.
// Entries receive sequential offsets from the content base, each aligned up.
func (a *Archive) readITOC(r *endian.Reader, align uint64, fileSize int64) error {
	if _, err := r.Seek(int64(a.itocOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to ITOC: %w", err)
	}

	sig, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("read ITOC signature: %w", err)
	}
	if string(sig) != "ITOC" {
		return fmt.Errorf("%w: invalid ITOC signature", errs.ErrInvalidFormat)
	}

	blob, encrypted, err := readInnerUTF(r, fileSize)
	if err != nil {
		return err
	}
	a.itocPacket = blob
	a.updateHeaderEntry("ITOC_HDR", encrypted, uint64(len(blob)))

	table, err := utf.Parse(blob)
	if err != nil {
		return err
	}

	sizes := make(map[uint32]uint64)
	extractSizes := make(map[uint32]uint64)
	var ids []uint32

	if v, ok := table.GetColumnData(0, "DataL"); ok {
		if raw, dok := v.AsData(); dok {
			inner, err := utf.Parse(raw)
			if err != nil {
				return err
			}
			for row := range int(inner.NumRows) {
				idVal, ok := inner.GetColumnData(row, "ID")
				if !ok {
					continue
				}
				id16, _ := idVal.AsUint16()
				id := uint32(id16)
				if fs, ok := inner.GetColumnData(row, "FileSize"); ok {
					sz, _ := fs.AsUint16()
					sizes[id] = uint64(sz)
					ids = append(ids, id)
				}
				if es, ok := inner.GetColumnData(row, "ExtractSize"); ok {
					sz, _ := es.AsUint16()
					extractSizes[id] = uint64(sz)
				}
			}
		}
	}

	if v, ok := table.GetColumnData(0, "DataH"); ok {
		if raw, dok := v.AsData(); dok {
			inner, err := utf.Parse(raw)
			if err != nil {
				return err
			}
			for row := range int(inner.NumRows) {
				idVal, ok := inner.GetColumnData(row, "ID")
				if !ok {
					continue
				}
				id16, _ := idVal.AsUint16()
				id := uint32(id16)
				if fs, ok := inner.GetColumnData(row, "FileSize"); ok {
					sz, _ := fs.AsUint32()
					sizes[id] = uint64(sz)
					if !slices.Contains(ids, id) {
						ids = append(ids, id)
					}
				}
				if es, ok := inner.GetColumnData(row, "ExtractSize"); ok {
					sz, _ := es.AsUint32()
					extractSizes[id] = uint64(sz)
				}
			}
		}
	}

	slices.Sort(ids)

	baseOffset := a.contentOffset
	for _, id := range ids {
		entry := &FileEntry{
			TocName:    "ITOC",
			FileType:   "FILE",
			FileName:   fmt.Sprintf("%04d", id),
			ID:         id,
			HasID:      true,
			FileOffset: baseOffset,
		}

		entry.FileSize = sizes[id]
		if es, ok := extractSizes[id]; ok {
			entry.ExtractSize = es
			entry.HasExtractSize = true
		}

		// Advance to the next aligned slot; already-aligned sizes get no pad.
		if entry.FileSize%align > 0 {
			baseOffset += entry.FileSize + (align - entry.FileSize%align)
		} else {
			baseOffset += entry.FileSize
		}

		a.FileTable = append(a.FileTable, entry)
	}

	return nil
}

// readGTOC verifies the GTOC signature. The section's group semantics are not
// parsed.
func (a *Archive) readGTOC(r *endian.Reader) error {
	if _, err := r.Seek(int64(a.gtocOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to GTOC: %w", err)
	}

	sig, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("read GTOC signature: %w", err)
	}
	if string(sig) != "GTOC" {
		return fmt.Errorf("%w: invalid GTOC signature", errs.ErrInvalidFormat)
	}

	return nil
}

// updateHeaderEntry back-fills a section pseudo-entry once its packet has
// been read.
func (a *Archive) updateHeaderEntry(name string, encrypted bool, size uint64) {
	for _, entry := range a.FileTable {
		if entry.FileName == name {
			entry.Encrypted = encrypted
			entry.FileSize = size

			return
		}
	}
}

// uint64Column reads a 64-bit column with the all-ones default, falling back
// to def when the cell holds a different width.
func uint64Column(t *utf.Table, row int, name string, def uint64) uint64 {
	if v, ok := t.GetColumnDataOrDefault(row, name, utf.KindUint64).AsUint64(); ok {
		return v
	}

	return def
}
