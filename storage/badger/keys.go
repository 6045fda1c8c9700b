package badger

import (
	"github.com/poiesic/repokeeper/core"
)

// Key prefixes for different data types
const (
	repositoryPrefix     = "repo:"
	repositoryNamePrefix = "reponame:"
	namespacePrefix      = "ns:"
	indexLogPrefix       = "idxlog:"
	documentPrefix       = "doc:"
)

// makeRepositoryKey generates a key for a repository by ID.
func makeRepositoryKey(id core.ID) []byte {
	return []byte(repositoryPrefix + string(id))
}

// makeRepositoryNameKey generates a key for the (namespace, name) uniqueness index.
// Format: prefix namespace NUL name. Namespaces never contain NUL.
func makeRepositoryNameKey(namespace, name string) []byte {
	buf := make([]byte, 0, len(repositoryNamePrefix)+len(namespace)+1+len(name))
	buf = append(buf, repositoryNamePrefix...)
	buf = append(buf, namespace...)
	buf = append(buf, 0)
	buf = append(buf, name...)
	return buf
}

// makeNamespaceKey generates a key for a namespace record.
func makeNamespaceKey(namespace string) []byte {
	return []byte(namespacePrefix + namespace)
}

// makeIndexLogKey generates a key for an index log entry.
func makeIndexLogKey(indexedType string) []byte {
	return []byte(indexLogPrefix + indexedType)
}

// makeDocumentTypePrefix generates the prefix shared by all documents of a type.
// Format: prefix type NUL
func makeDocumentTypePrefix(docType string) []byte {
	buf := make([]byte, 0, len(documentPrefix)+len(docType)+1)
	buf = append(buf, documentPrefix...)
	buf = append(buf, docType...)
	return append(buf, 0)
}

// makeDocumentKey generates a key for a search index document.
// Format: prefix type NUL id
func makeDocumentKey(docType, id string) []byte {
	return append(makeDocumentTypePrefix(docType), id...)
}
