package engine

import "regexp"

// doiPattern matches the DOI syntax from the DOI Handbook: a "10." prefix,
// a registrant code, a slash, and a suffix of any non-whitespace characters.
var doiPattern = regexp.MustCompile(`(?i)^10\.\d{4,9}/\S+$`)

// arxivPattern matches both the modern (YYMM.NNNNN) and the legacy
// (archive/YYMMNNN) arXiv identifier formats.
var arxivPattern = regexp.MustCompile(`(?i)^(\d{4}\.\d{4,5}(v\d+)?|[a-z.-]+/\d{7}(v\d+)?)$`)

// validDOIFormat reports whether doi is syntactically a DOI. It does not
// check existence.
func validDOIFormat(doi string) bool {
	return doiPattern.MatchString(doi)
}

// validArxivIDFormat reports whether id is syntactically an arXiv
// identifier. It does not check existence.
func validArxivIDFormat(id string) bool {
	return arxivPattern.MatchString(id)
}

// buildDOIInfo derives DOIInfo from the reference's DOI and, if present, the
// DOI backend's own DbResult (a Match or AuthorMismatch confirms existence).
func buildDOIInfo(doi string, doiBackendResult *DbResult) *DOIInfo {
	if doi == "" {
		return nil
	}
	info := &DOIInfo{DOI: doi, Valid: validDOIFormat(doi)}
	if doiBackendResult != nil {
		switch doiBackendResult.Status {
		case DbMatch, DbAuthorMismatch:
			info.Matched = true
		}
	}
	return info
}

// buildArxivInfo derives ArxivInfo from the reference's arXiv ID and, if
// present, the arXiv backend's own DbResult.
func buildArxivInfo(arxivID string, arxivBackendResult *DbResult) *ArxivInfo {
	if arxivID == "" {
		return nil
	}
	info := &ArxivInfo{ArxivID: arxivID, Valid: validArxivIDFormat(arxivID)}
	if arxivBackendResult != nil {
		switch arxivBackendResult.Status {
		case DbMatch, DbAuthorMismatch:
			info.Matched = true
		}
	}
	return info
}
