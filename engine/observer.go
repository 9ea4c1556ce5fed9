package engine

// Observer receives queue notifications. All methods run on the loop
// goroutine and must not block.
type Observer interface {
	// NodeAdded fires after item got its id and was attached.
	NodeAdded(item Item)
	// NodeRemoving fires while item is still attached.
	NodeRemoving(item Item)
	// NodeRemoved fires once the item announced by NodeRemoving is gone.
	NodeRemoved()
	// NodeChanged fires on status and counter changes.
	NodeChanged(item Item)
	// QueueUpdated fires after reorders and when a top-level run ends.
	QueueUpdated()

	FailedAdded(ft *FailedTransfer)
	FailedRemoving(ft *FailedTransfer)
	FailedRemoved()

	// TransferFinished fires when a file transfer completed successfully.
	TransferFinished(t *Transfer)
}

// NopObserver ignores everything. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) NodeAdded(Item)                 {}
func (NopObserver) NodeRemoving(Item)              {}
func (NopObserver) NodeRemoved()                   {}
func (NopObserver) NodeChanged(Item)               {}
func (NopObserver) QueueUpdated()                  {}
func (NopObserver) FailedAdded(*FailedTransfer)    {}
func (NopObserver) FailedRemoving(*FailedTransfer) {}
func (NopObserver) FailedRemoved()                 {}
func (NopObserver) TransferFinished(*Transfer)     {}

// Observers fans every notification out to each element in order.
type Observers []Observer

func (o Observers) NodeAdded(item Item) {
	for _, x := range o {
		x.NodeAdded(item)
	}
}

func (o Observers) NodeRemoving(item Item) {
	for _, x := range o {
		x.NodeRemoving(item)
	}
}

func (o Observers) NodeRemoved() {
	for _, x := range o {
		x.NodeRemoved()
	}
}

func (o Observers) NodeChanged(item Item) {
	for _, x := range o {
		x.NodeChanged(item)
	}
}

func (o Observers) QueueUpdated() {
	for _, x := range o {
		x.QueueUpdated()
	}
}

func (o Observers) FailedAdded(ft *FailedTransfer) {
	for _, x := range o {
		x.FailedAdded(ft)
	}
}

func (o Observers) FailedRemoving(ft *FailedTransfer) {
	for _, x := range o {
		x.FailedRemoving(ft)
	}
}

func (o Observers) FailedRemoved() {
	for _, x := range o {
		x.FailedRemoved()
	}
}

func (o Observers) TransferFinished(t *Transfer) {
	for _, x := range o {
		x.TransferFinished(t)
	}
}
