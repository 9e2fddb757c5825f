package engine

// Item identifies one source to transfer: a local file path in upload mode,
// a remote data:// URI in download mode. Items are immutable once enqueued;
// the write target is resolved per item inside the worker, since the
// destination's kind can change between items.
type Item struct {
	Source string
}

// ItemChannel is the bounded queue carrying Items from the batch producer to
// the workers. The producer closing it is the only signal that no more work
// is coming.
type ItemChannel chan Item
