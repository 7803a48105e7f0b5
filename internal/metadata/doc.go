// Package metadata resolves layered metadata lookups.
//
// A metadata document has three scopes, innermost first:
//
//	databases.<db>.tables.<table>   table scope
//	databases.<db>                  database scope
//	<document root>                 global scope
//
// # Lookup Rules
//
//   - With fallback, the first scope (innermost to outermost) defining the
//     key wins.
//   - Without fallback, only the innermost scope present is consulted.
//   - A merged view folds scopes outer-to-inner so inner keys override outer
//     ones with the same name.
//   - Table scope requires database scope. Asking for a table without a
//     database is a contract violation and fails immediately.
//
// Resolve and Merge are pure functions over an explicit scope list so the
// rules can be exercised without a document. The document is read-only once
// loaded and needs no synchronization.
package metadata
