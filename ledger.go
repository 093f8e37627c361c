package main

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	// 2019-01-01 open Assets:Checking USD
	ropen = regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}\s+open\s+(\S+)`)
	// 2019-01-05 * "Payee" "memo"   (or ! / txn flags)
	rtxnHeader = regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}\s+(\*|!|txn\b)`)
	// indented metadata:   ynab-id: "uuid"
	rmeta = regexp.MustCompile(`^\s+` + metadataKey + `:\s*"([^"]+)"`)
)

// journal is what the import needs to know about the existing ledger file:
// which remote ids are pinned to a declared account, and which transactions
// have already been written out on a previous run.
type journal struct {
	// AccountMapping maps a remote id to the ledger account whose open
	// directive carries that id as metadata. An explicit mapping always
	// beats the computed default account path.
	AccountMapping map[string]string

	// SeenIDs are the remote transaction ids already present in the file.
	SeenIDs map[string]struct{}
}

func newJournal() *journal {
	return &journal{
		AccountMapping: make(map[string]string),
		SeenIDs:        make(map[string]struct{}),
	}
}

// loadJournal reads the ledger file (plus one level of include directives)
// and scans it for ynab-id metadata. An empty path yields an empty journal,
// for first runs where no ledger exists yet.
func loadJournal(fileName string) (*journal, error) {
	j := newJournal()
	if fileName == "" {
		return j, nil
	}

	data, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read journal %s", fileName)
	}
	data, err = includeAll(path.Dir(fileName), data)
	if err != nil {
		return nil, err
	}

	j.scan(data)
	return j, nil
}

// scan walks the journal line by line. Metadata lines attach to whichever
// directive opened most recently: an open directive records an account
// mapping, a transaction header records a seen id.
func (j *journal) scan(data []byte) {
	var openAccount string
	var inTxn bool

	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		line := s.Text()

		if m := ropen.FindStringSubmatch(line); m != nil {
			openAccount = m[1]
			inTxn = false
			continue
		}
		if rtxnHeader.MatchString(line) {
			openAccount = ""
			inTxn = true
			continue
		}

		m := rmeta.FindStringSubmatch(line)
		if m == nil {
			// Any other non-indented line ends the current directive.
			if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
				openAccount = ""
				inTxn = false
			}
			continue
		}

		id := m[1]
		switch {
		case openAccount != "":
			j.AccountMapping[id] = openAccount
		case inTxn:
			j.SeenIDs[id] = struct{}{}
		}
	}
}

// includeAll appends the contents of files named by include directives, so
// mappings and seen ids split across files are still found. Only one level
// deep; ledger setups that include includes are on their own.
func includeAll(dir string, data []byte) ([]byte, error) {
	final := make([]byte, len(data))
	copy(final, data)

	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "include ") {
			continue
		}
		fname := strings.Trim(strings.TrimPrefix(line, "include "), " \t\"")
		include, err := ioutil.ReadFile(path.Join(dir, fname))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read included file %s", fname)
		}
		final = append(final, '\n')
		final = append(final, include...)
	}
	return final, nil
}
