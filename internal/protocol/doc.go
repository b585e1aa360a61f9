// Package protocol holds the vocabulary shared by every layer of pledge:
// identities, amounts, commitment kinds and statuses, the error taxonomy,
// committed events, and the operation records the engine journals.
//
// protocol imports nothing internal. All other internal packages import it.
//
// Key constraints:
//   - Time is unix seconds (Timestamp). There are no wall-clock reads here.
//   - Amounts are unsigned integers; there are no floats anywhere.
//   - All JSON tags use snake_case.
//   - Effects are buffered per call and only become visible when the
//     engine commits a successful operation.
package protocol
