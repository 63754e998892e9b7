package sidecar

import "encoding/xml"

// Metadata is everything written into an OPF sidecar.
type Metadata struct {
	ID          string
	Title       string
	Author      string
	Language    string
	ISBN        string
	Publisher   string
	Date        string
	Description string
	Series      string
	SeriesIndex string
	// Cover is the cover file name relative to the sidecar.
	Cover string
}

// The OPF is written with literal prefixed names so the output matches what
// calibre expects of a standalone metadata.opf.

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Xmlns    string      `xml:"xmlns,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Guide    *opfGuide   `xml:"guide,omitempty"`
}

type opfMetadata struct {
	DC          string     `xml:"xmlns:dc,attr"`
	OPF         string     `xml:"xmlns:opf,attr"`
	Title       string     `xml:"dc:title"`
	Creator     opfCreator `xml:"dc:creator"`
	Language    string     `xml:"dc:language"`
	Identifiers []opfID    `xml:"dc:identifier"`
	Publisher   string     `xml:"dc:publisher,omitempty"`
	Date        string     `xml:"dc:date,omitempty"`
	Description string     `xml:"dc:description,omitempty"`
	Meta        []opfMeta  `xml:"meta"`
}

type opfCreator struct {
	Text   string `xml:",chardata"`
	FileAs string `xml:"opf:file-as,attr,omitempty"`
	Role   string `xml:"opf:role,attr"`
}

type opfID struct {
	Text   string `xml:",chardata"`
	Scheme string `xml:"opf:scheme,attr"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// readPackage mirrors opfPackage for decoding. Un-namespaced tags match the
// dc and opf elements whatever prefix the file uses.
type readPackage struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Title   string `xml:"title"`
		Creator struct {
			Text   string `xml:",chardata"`
			FileAs string `xml:"file-as,attr"`
			Role   string `xml:"role,attr"`
		} `xml:"creator"`
		Language    string `xml:"language"`
		Identifiers []struct {
			Text   string `xml:",chardata"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
		Publisher   string    `xml:"publisher"`
		Date        string    `xml:"date"`
		Description string    `xml:"description"`
		Meta        []opfMeta `xml:"meta"`
	} `xml:"metadata"`
	Guide struct {
		References []opfReference `xml:"reference"`
	} `xml:"guide"`
}
