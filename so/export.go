package so

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/rdf"
)

// MetaRow is one repository of the metadata table.
type MetaRow struct {
	URL          string
	Lang         string
	Contributors int
	License      string // empty when the repository declares none
	CreatedAt    string
	UpdatedAt    string
}

// MetaHeader is the column order of WriteCSV.
var MetaHeader = []string{"url", "lang", "contributors", "license", "created_at", "updated_at"}

// Every software subject that has a language and both dates yields one row.
// License is optional and contributors may be zero.
const metaQuery = `
SELECT t.subject,
       MIN(l.object),
       (SELECT COUNT(DISTINCT c.object) FROM statements c
         WHERE c.subject = t.subject AND c.predicate = ?) AS contributors,
       (SELECT MIN(li.object) FROM statements li
         WHERE li.subject = t.subject AND li.predicate = ?) AS license,
       MIN(cr.object),
       MIN(md.object)
FROM statements t
JOIN statements l  ON l.subject  = t.subject AND l.predicate  = ?
JOIN statements cr ON cr.subject = t.subject AND cr.predicate = ?
JOIN statements md ON md.subject = t.subject AND md.predicate = ?
WHERE t.predicate = ? AND t.object = ? AND t.object_kind = ?
GROUP BY t.subject
ORDER BY t.subject`

// MetaRows runs the metadata query over the loaded statements.
func (s *TableStore) MetaRows(ctx context.Context) ([]MetaRow, error) {
	rows, err := s.db.QueryContext(ctx, metaQuery,
		rdf.SchemaContributor,
		rdf.SchemaLicense,
		rdf.SchemaProgrammingLang,
		rdf.SchemaDateCreated,
		rdf.SchemaDateModified,
		rdf.RDFType, rdf.SchemaSoftwareSourceCode, int(rdf.KindIRI),
	)
	if err != nil {
		return nil, storeErr(err, "query repository metadata")
	}
	defer rows.Close()

	var out []MetaRow
	for rows.Next() {
		var r MetaRow
		var license sql.NullString
		if err := rows.Scan(&r.URL, &r.Lang, &r.Contributors, &license, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan repository metadata")
		}
		r.License = license.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate repository metadata")
	}
	return out, nil
}

func (r MetaRow) record() []string {
	return []string{r.URL, r.Lang, strconv.Itoa(r.Contributors), r.License, r.CreatedAt, r.UpdatedAt}
}

// WriteCSV writes rows with a MetaHeader header line.
func WriteCSV(w io.Writer, rows []MetaRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MetaHeader); err != nil {
		return errors.Wrap(err, "failed to write headers")
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
