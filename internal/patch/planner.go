package patch

import (
	"time"

	"github.com/mw90/attrpatch/internal/bundle"
	"github.com/mw90/attrpatch/internal/record"
)

// document is one decodable entry in a loaded bundle, tracked through
// planning so each entry is decoded once no matter how many edits hit it.
type document struct {
	container *bundle.Container
	entry     *bundle.Entry
	raw       []byte
	rec       record.Record
	edited    bool
	firstEdit int
}

// Plan turns a batch of edits against the loaded bundles into a
// transaction of byte replacements. Planning rejects the whole batch on
// the first violated invariant: there is no partial plan, so a failed
// plan touches nothing.
//
// Entries whose payloads are not a registered record kind are skipped;
// this tool edits a narrow set of records and leaves everything else to
// its original bytes.
func Plan(sources []*bundle.Container, batch *Batch) (*Transaction, error) {
	docs, order, err := decodeAll(sources)
	if err != nil {
		return nil, err
	}

	for i, edit := range batch.Edits {
		doc, ok := docs[edit.Entry]
		if !ok {
			return nil, &PlanError{EditIndex: i, Entry: edit.Entry, Err: &UnknownTargetError{Entry: edit.Entry}}
		}
		if err := apply(doc.rec, edit.Field, edit.Value); err != nil {
			return nil, &PlanError{EditIndex: i, Entry: edit.Entry, Err: err}
		}
		if !doc.edited {
			doc.edited = true
			doc.firstEdit = i
		}
	}

	if err := validate(docs, order); err != nil {
		return nil, err
	}

	tx := &Transaction{
		CreatedAt:   time.Now(),
		State:       Planned,
		AllowResize: batch.AllowResize,
	}
	for _, name := range order {
		doc := docs[name]
		if !doc.edited {
			continue
		}
		op, err := encodeDoc(doc, batch.AllowResize)
		if err != nil {
			return nil, &PlanError{EditIndex: doc.firstEdit, Entry: name, Err: err}
		}
		tx.Ops = append(tx.Ops, op)
	}

	return tx, nil
}

func decodeAll(sources []*bundle.Container) (map[string]*document, []string, error) {
	docs := make(map[string]*document)
	var order []string

	for _, c := range sources {
		for i := range c.Entries {
			e := &c.Entries[i]
			if _, ok := docs[e.Name]; ok {
				// first bundle wins, matching lookup order
				continue
			}
			raw, err := c.Payload(e)
			if err != nil {
				return nil, nil, err
			}
			kind, err := record.KindOf(raw)
			if err != nil {
				continue
			}
			rec, err := record.Decode(kind, raw)
			if err != nil {
				return nil, nil, &PlanError{EditIndex: -1, Entry: e.Name, Err: err}
			}
			docs[e.Name] = &document{container: c, entry: e, raw: raw, rec: rec}
			order = append(order, e.Name)
		}
	}
	return docs, order, nil
}

// validate enforces the decoded-value invariants over the final state of
// every document: edited threshold tables must still tile the scale, and
// every colour preset must correspond tier-for-tier with the threshold
// table once either side has been touched.
func validate(docs map[string]*document, order []string) error {
	var thresholds *document
	var presets []*document
	anyTierEdit := false

	for _, name := range order {
		doc := docs[name]
		switch rec := doc.rec.(type) {
		case *record.ThresholdTable:
			if doc.edited {
				if err := rec.Validate(); err != nil {
					return &PlanError{EditIndex: doc.firstEdit, Entry: name, Err: err}
				}
				anyTierEdit = true
			}
			if thresholds == nil {
				thresholds = doc
			}
		case *record.ColourPreset:
			presets = append(presets, doc)
			if doc.edited {
				anyTierEdit = true
			}
		}
	}

	if !anyTierEdit || thresholds == nil {
		return nil
	}
	table := thresholds.rec.(*record.ThresholdTable)
	for _, doc := range presets {
		if err := record.Correspondence(table, doc.rec.(*record.ColourPreset)); err != nil {
			at := doc
			if !doc.edited {
				at = thresholds
			}
			return &PlanError{EditIndex: at.firstEdit, Entry: at.entry.Name, Err: err}
		}
	}
	return nil
}

func encodeDoc(doc *document, allowResize bool) (Operation, error) {
	var raw []byte
	var err error
	if allowResize {
		raw, err = record.EncodeResized(doc.rec, doc.raw)
	} else {
		raw, err = record.Encode(doc.rec, doc.raw)
	}
	if err != nil {
		return Operation{}, err
	}

	stored, err := bundle.CompressPayload(doc.entry, raw)
	if err != nil {
		return Operation{}, err
	}
	if !allowResize && len(stored) != int(doc.entry.Length) {
		return Operation{}, &bundle.ResizeNotAllowedError{
			Path:  doc.container.Path,
			Entry: doc.entry.Name,
			Old:   int(doc.entry.Length),
			New:   len(stored),
		}
	}

	return Operation{
		File:     doc.container.Path,
		Entry:    doc.entry.Name,
		Original: doc.container.Stored(doc.entry),
		Replacement: bundle.Replacement{
			Stored: stored,
			RawLen: uint32(len(raw)),
		},
	}, nil
}
