/*
Package cart manages pre-order carts.

A cart belongs to a user or an anonymous session; get-or-create goes through
the owner index so repeat visits land on the same cart. Line items snapshot
the variant's unit price at the moment they are added; later price changes
never move an existing line. All writes are optimistic: concurrent mutations
of the same cart produce exactly one winner, the loser sees a conflict.
Once checkout converts a cart to an order it is frozen.
*/
package cart
