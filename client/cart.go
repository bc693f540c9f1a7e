package client

import (
	"errors"
	"sync"
)

// ErrNoProductID is returned when a product without an id is added to the cart.
var ErrNoProductID = errors.New("product has no id")

// CartItem is a product and how many of it are in the cart.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Cart is an in-memory shopping cart. It is safe for concurrent use and is never persisted.
type Cart struct {
	mu          sync.Mutex
	items       []CartItem
	subscribers map[int]chan []CartItem
	nextID      int
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{subscribers: make(map[int]chan []CartItem)}
}

// Add puts one unit of p in the cart, incrementing the quantity if it is already there.
func (c *Cart) Add(p Product) error {
	if p.ID == "" {
		return ErrNoProductID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	found := false
	for i := range c.items {
		if c.items[i].Product.ID == p.ID {
			c.items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		c.items = append(c.items, CartItem{Product: p, Quantity: 1})
	}
	c.notify()
	return nil
}

// Remove drops the product with id from the cart regardless of quantity.
func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].Product.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.notify()
			return
		}
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.notify()
}

// Count returns the total number of units in the cart.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Total returns the sum of price times quantity.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, it := range c.items {
		total += it.Product.Price * float64(it.Quantity)
	}
	return total
}

// Items returns a snapshot of the cart in insertion order.
func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Subscribe returns a channel that receives the cart contents after every change, starting
// with the current contents. Only the latest snapshot is buffered: a slow reader skips
// intermediate states. The returned func unsubscribes and closes the channel.
func (c *Cart) Subscribe() (<-chan []CartItem, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan []CartItem, 1)
	id := c.nextID
	c.nextID++
	c.subscribers[id] = ch
	ch <- c.snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subscribers, id)
			close(ch)
		})
	}
}

func (c *Cart) snapshot() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// notify must be called with c.mu held.
func (c *Cart) notify() {
	for _, ch := range c.subscribers {
		snap := c.snapshot()
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
