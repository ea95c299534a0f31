package rdf

// Namespaces
const (
	SchemaNS = "http://schema.org/"
	RDFNS    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSDNS    = "http://www.w3.org/2001/XMLSchema#"
	SPDXNS   = "https://spdx.org/licenses/"
)

// Datatypes
const (
	XSDString   = XSDNS + "string"
	XSDDateTime = XSDNS + "dateTime"
	XSDInteger  = XSDNS + "integer"
)

// Terms used for software source code descriptions
const (
	RDFType = RDFNS + "type"

	SchemaSoftwareSourceCode = SchemaNS + "SoftwareSourceCode"
	SchemaName               = SchemaNS + "name"
	SchemaDescription        = SchemaNS + "description"
	SchemaCodeRepository     = SchemaNS + "codeRepository"
	SchemaProgrammingLang    = SchemaNS + "programmingLanguage"
	SchemaDateCreated        = SchemaNS + "dateCreated"
	SchemaDateModified       = SchemaNS + "dateModified"
	SchemaLicense            = SchemaNS + "license"
	SchemaContributor        = SchemaNS + "contributor"
	SchemaAuthor             = SchemaNS + "author"
	SchemaKeywords           = SchemaNS + "keywords"
)

// Shorthand constructors for the common predicates.
var (
	TypePredicate = IRI(RDFType)
	SoftwareType  = IRI(SchemaSoftwareSourceCode)
)

// LicenseIRI maps an SPDX identifier to its canonical IRI.
func LicenseIRI(spdxID string) Term {
	return IRI(SPDXNS + spdxID)
}
